package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
)

const (
	// ActionRead views the public portfolio.
	ActionRead Action = "read"
	// ActionEdit changes the local draft.
	ActionEdit Action = "edit"
	// ActionPublish submits the draft on chain.
	ActionPublish Action = "publish"
	// ActionManage covers identifier resets, the ledger and notifications.
	ActionManage Action = "manage"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
