package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer edit", role: RoleViewer, action: ActionEdit, allow: false},
		{name: "viewer publish", role: RoleViewer, action: ActionPublish, allow: false},
		{name: "admin publish", role: RoleAdmin, action: ActionPublish, allow: true},
		{name: "admin manage", role: RoleAdmin, action: ActionManage, allow: true},
		{name: "unknown role", role: Role("editor"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("admin") != RoleAdmin {
		t.Fatal("admin should stay admin")
	}
	if Normalize("editor") != RoleViewer {
		t.Fatal("unknown roles fall back to viewer")
	}
}
