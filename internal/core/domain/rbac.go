package domain

// Role defines a named set of permissions.
type Role struct {
	ID          int64
	Name        string
	Description *string
}

// Permission defines a named capability.
type Permission struct {
	ID          int64
	Name        string
	Description *string
}

// Portal permission catalog. The names are the contract carried in access-token
// claims and referenced by per-endpoint policy keys.
const (
	PermUsersRead     = "users.read"
	PermUsersWrite    = "users.write"
	PermUsersDelete   = "users.delete"
	PermEntitiesRead  = "entities.read"
	PermEntitiesWrite = "entities.write"
	PermReportsRead   = "reports.read"
	PermReportsWrite  = "reports.write"
	PermReportsCreate = "reports.create"
	PermMessagesRead  = "messages.read"
	PermMessagesWrite = "messages.write"
	PermCasesRead     = "cases.read"
	PermCasesWrite    = "cases.write"
)
