package models

import "time"

const (
	SessionActive    = "Active"
	SessionCompleted = "Completed"
)

type ChargePoint struct {
	ID                string
	Vendor            string
	Model             string
	SerialNumber      string
	BoxSerialNumber   string
	FirmwareVersion   string
	Iccid             string
	Imsi              string
	MeterType         string
	MeterSerialNumber string
	SecretHash        string
	IsOnline          bool
	LastSeenAt        *time.Time
	Status            string
	BootStatus        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type IdTag struct {
	ID          int64
	Tag         string
	Status      string
	ExpiryDate  *time.Time
	ParentIdTag *string
	CreatedAt   time.Time
}

type Session struct {
	ID            int64
	TransactionID int
	ChargePointID string
	IdTagID       int64
	ConnectorID   int
	MeterStart    *int
	MeterStop     *int
	StartedAt     time.Time
	StoppedAt     *time.Time
	Status        string
	StopReason    *string
	EnergyKwh     *float64
	ReservationID *int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type MeterValue struct {
	ID        int64
	SessionID *int64
	Timestamp time.Time
	Value     float64
	Unit      string
	Measurand string
	Phase     *string
	Location  string
	Context   string
	Format    string
	CreatedAt time.Time
}

// ConnectorStatus is one row of the append-only status event log.
type ConnectorStatus struct {
	ID              int64
	ChargePointID   string
	ConnectorID     int
	Status          string
	ErrorCode       string
	Timestamp       time.Time
	Info            *string
	VendorID        *string
	VendorErrorCode *string
	Availability    string
	CreatedAt       time.Time
}

// ConnectorState is the denormalized "latest" view of the status log,
// maintained in the same transaction as each ConnectorStatus insert.
type ConnectorState struct {
	ChargePointID string
	ConnectorID   int
	Status        string
	ErrorCode     string
	Availability  string
	UpdatedAt     time.Time
}

type Command struct {
	CommandID     string
	ChargePointID string
	Action        string
	PayloadJSON   []byte
	Status        string
	ResponseJSON  []byte
	Error         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
