// Package directory provides organisational lookups for approver resolution.
package directory

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/store-approval/internal/application/port"
)

// ErrUnknown is wrapped by lookups of ids the directory does not know
var ErrUnknown = errors.New("not in directory")

// StaticUser is one person in a static directory file
type StaticUser struct {
	Department string `yaml:"department"`
	Manager    string `yaml:"manager"`
}

// StaticDepartment is one department in a static directory file
type StaticDepartment struct {
	Manager string `yaml:"manager"`
}

// StaticData is the content of a static directory file
type StaticData struct {
	Users       map[string]StaticUser       `yaml:"users"`
	Departments map[string]StaticDepartment `yaml:"departments"`
	Roles       map[string][]string         `yaml:"roles"`
}

// Static answers lookups from a fixed organisation chart. It suits
// single-site deployments and tests.
type Static struct {
	data StaticData
}

// NewStatic creates a directory over data
func NewStatic(data StaticData) *Static {
	return &Static{data: data}
}

// LoadStatic reads a YAML organisation chart
func LoadStatic(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}
	var data StaticData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse directory file %s: %w", path, err)
	}
	return NewStatic(data), nil
}

func (s *Static) RoleMembers(_ context.Context, roleID string) ([]string, error) {
	members, ok := s.data.Roles[roleID]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", roleID, ErrUnknown)
	}
	return append([]string(nil), members...), nil
}

func (s *Static) DepartmentManager(_ context.Context, departmentID string) (string, error) {
	dept, ok := s.data.Departments[departmentID]
	if !ok {
		return "", fmt.Errorf("department %s: %w", departmentID, ErrUnknown)
	}
	if dept.Manager == "" {
		return "", fmt.Errorf("department %s has no manager", departmentID)
	}
	return dept.Manager, nil
}

func (s *Static) ReportingManager(_ context.Context, actorID string) (string, error) {
	user, ok := s.data.Users[actorID]
	if !ok {
		return "", fmt.Errorf("user %s: %w", actorID, ErrUnknown)
	}
	if user.Manager != "" {
		return user.Manager, nil
	}
	// Fall back to the head of the user's department
	if user.Department != "" {
		if dept, ok := s.data.Departments[user.Department]; ok && dept.Manager != "" && dept.Manager != actorID {
			return dept.Manager, nil
		}
	}
	return "", fmt.Errorf("user %s has no reporting manager", actorID)
}

func (s *Static) DepartmentOf(_ context.Context, actorID string) (string, error) {
	user, ok := s.data.Users[actorID]
	if !ok {
		return "", fmt.Errorf("user %s: %w", actorID, ErrUnknown)
	}
	return user.Department, nil
}

var _ port.Directory = (*Static)(nil)
