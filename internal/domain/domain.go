package domain

import "time"

// Area is one of the fixed organizational units a case file can belong to.
type Area string

const (
	AreaMesaEntrada    Area = "mesa_entrada"
	AreaLegal          Area = "area_legal"
	AreaTecnica        Area = "area_tecnica"
	AreaAdministrativa Area = "area_administrativa"
	AreaDireccion      Area = "direccion"
)

// Areas lists every area in display order.
var Areas = []Area{AreaMesaEntrada, AreaLegal, AreaTecnica, AreaAdministrativa, AreaDireccion}

func (a Area) Valid() bool {
	for _, v := range Areas {
		if a == v {
			return true
		}
	}
	return false
}

// Label returns the human-readable area name.
func (a Area) Label() string {
	switch a {
	case AreaMesaEntrada:
		return "Mesa de Entrada"
	case AreaLegal:
		return "Área Legal"
	case AreaTecnica:
		return "Área Técnica"
	case AreaAdministrativa:
		return "Área Administrativa"
	case AreaDireccion:
		return "Dirección"
	}
	return string(a)
}

type CaseStatus string

const (
	StatusPendiente CaseStatus = "pendiente"
	StatusEnProceso CaseStatus = "en_proceso"
	StatusResuelto  CaseStatus = "resuelto"
)

// StatusAll is the list filter sentinel meaning "no status filter".
const StatusAll = "all"

func (s CaseStatus) Valid() bool {
	switch s {
	case StatusPendiente, StatusEnProceso, StatusResuelto:
		return true
	}
	return false
}

type Priority string

const (
	PriorityBaja  Priority = "baja"
	PriorityMedia Priority = "media"
	PriorityAlta  Priority = "alta"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityBaja, PriorityMedia, PriorityAlta:
		return true
	}
	return false
}

// Article is the classification tag of a case file: the article of
// consumer-protection law 24.240 the claim is filed under.
type Article string

func (a Article) Valid() bool {
	switch a {
	case "1", "2", "3", "4", "5", "6":
		return true
	}
	return false
}

type TransferStatus string

const (
	TransferPending  TransferStatus = "pending"
	TransferAccepted TransferStatus = "accepted"
	TransferRejected TransferStatus = "rejected"
)

func (s TransferStatus) Valid() bool {
	switch s {
	case TransferPending, TransferAccepted, TransferRejected:
		return true
	}
	return false
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Area      Area   `json:"area"`
	Role      Role   `json:"role"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// UserRef is the display projection of a user embedded in other records.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Area     Area   `json:"area,omitempty"`
}

type CaseFile struct {
	ID          string     `json:"id"`
	Number      string     `json:"numero"`
	Title       string     `json:"titulo"`
	Description string     `json:"descripcion"`
	Area        Area       `json:"area"`
	Status      CaseStatus `json:"estado"`
	Priority    Priority   `json:"prioridad"`
	Article     Article    `json:"articulo"`
	OwnerID     string     `json:"owner_id"`
	CreatedBy   string     `json:"created_by"`
	Owner       *UserRef   `json:"user,omitempty"`
	Creator     *UserRef   `json:"creator,omitempty"`
	CreatedAt   string     `json:"created_at" format:"date-time"`
	UpdatedAt   string     `json:"updated_at" format:"date-time"`
}

type TransferRequest struct {
	ID         string         `json:"id"`
	CaseFileID string         `json:"expediente_id"`
	FromUserID string         `json:"from_user_id"`
	ToUserID   string         `json:"to_user_id"`
	ToArea     Area           `json:"to_area"`
	Status     TransferStatus `json:"status"`
	Message    string         `json:"message"`
	CaseFile   *CaseFile      `json:"expediente,omitempty"`
	FromUser   *UserRef       `json:"from_user,omitempty"`
	ToUser     *UserRef       `json:"to_user,omitempty"`
	CreatedAt  string         `json:"created_at" format:"date-time"`
	UpdatedAt  string         `json:"updated_at" format:"date-time"`
	ResolvedAt *string        `json:"resolved_at,omitempty" format:"date-time"`
}

type HistoryRecord struct {
	ID           string   `json:"id"`
	CaseFileID   string   `json:"expediente_id"`
	RequestID    string   `json:"request_id"`
	FromArea     Area     `json:"from_area"`
	ToArea       Area     `json:"to_area"`
	FromUserID   string   `json:"from_user_id"`
	ToUserID     string   `json:"to_user_id"`
	Observations string   `json:"observaciones"`
	FromUser     *UserRef `json:"from_user,omitempty"`
	ToUser       *UserRef `json:"to_user,omitempty"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// TimeLayout is fixed-width so stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
