package users

// Roles recognized by the workflow. Rol is stored as plain text on the user
// row and travels inside the session token.
const (
	RolAdmin   = "admin"
	RolGerente = "gerente"
	RolRH      = "rh"
	RolControl = "control"
)

// Usuario is a login account. Accounts exist only for workflow staff; the
// subject of a record never has one and signs through the access code instead.
type Usuario struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null"`
	Email            string `gorm:"column:email;size:255;not null;uniqueIndex:idx_usuarios_email"`
	PasswordHash     string `gorm:"column:password_hash;type:text;not null"`
	Nombre           string `gorm:"column:nombre;type:text;not null"`
	Rol              string `gorm:"column:rol;size:20;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Usuario) TableName() string {
	return "usuarios"
}
