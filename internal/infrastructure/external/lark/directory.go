package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkcontact "github.com/larksuite/oapi-sdk-go/v3/service/contact/v3"
	"go.uber.org/zap"

	"github.com/garyjia/store-approval/internal/application/port"
)

// Directory answers organisational lookups from the Lark contact API.
// Functional roles back role approvers; department leaders back manager lookups.
type Directory struct {
	client *SDKClient
	logger *zap.Logger
}

// NewDirectory creates a Lark-backed directory
func NewDirectory(client *SDKClient, logger *zap.Logger) *Directory {
	return &Directory{client: client, logger: logger}
}

const departmentIDType = "open_department_id"

func (d *Directory) user(ctx context.Context, actorID string) (*larkcontact.User, error) {
	req := larkcontact.NewGetUserReqBuilder().
		UserId(actorID).
		UserIdType(d.client.IDType()).
		DepartmentIdType(departmentIDType).
		Build()

	resp, err := d.client.GetClient().Contact.User.Get(ctx, req)
	if err != nil {
		d.logger.Error("Failed to get user", zap.String("user_id", actorID), zap.Error(err))
		return nil, fmt.Errorf("failed to get user %s: %w", actorID, err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get user %s: code=%d, msg=%s", actorID, resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.User == nil {
		return nil, fmt.Errorf("user %s not found", actorID)
	}
	return resp.Data.User, nil
}

func (d *Directory) DepartmentManager(ctx context.Context, departmentID string) (string, error) {
	req := larkcontact.NewGetDepartmentReqBuilder().
		DepartmentId(departmentID).
		UserIdType(d.client.IDType()).
		DepartmentIdType(departmentIDType).
		Build()

	resp, err := d.client.GetClient().Contact.Department.Get(ctx, req)
	if err != nil {
		d.logger.Error("Failed to get department", zap.String("department_id", departmentID), zap.Error(err))
		return "", fmt.Errorf("failed to get department %s: %w", departmentID, err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("get department %s: code=%d, msg=%s", departmentID, resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.Department == nil || resp.Data.Department.LeaderUserId == nil || *resp.Data.Department.LeaderUserId == "" {
		return "", fmt.Errorf("department %s has no leader", departmentID)
	}
	return *resp.Data.Department.LeaderUserId, nil
}

func (d *Directory) ReportingManager(ctx context.Context, actorID string) (string, error) {
	u, err := d.user(ctx, actorID)
	if err != nil {
		return "", err
	}
	if u.LeaderUserId == nil || *u.LeaderUserId == "" {
		return "", fmt.Errorf("user %s has no leader", actorID)
	}
	return *u.LeaderUserId, nil
}

// DepartmentOf returns the user's first department
func (d *Directory) DepartmentOf(ctx context.Context, actorID string) (string, error) {
	u, err := d.user(ctx, actorID)
	if err != nil {
		return "", err
	}
	if len(u.DepartmentIds) == 0 {
		return "", nil
	}
	return u.DepartmentIds[0], nil
}

// roleMembersPage is the body of the functional role member listing
type roleMembersPage struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Members []struct {
			MemberID string `json:"member_id"`
		} `json:"members"`
		PageToken string `json:"page_token"`
		HasMore   bool   `json:"has_more"`
	} `json:"data"`
}

// RoleMembers lists every member of a functional role, following pagination
func (d *Directory) RoleMembers(ctx context.Context, roleID string) ([]string, error) {
	var members []string
	token := ""
	for page := 0; page < 100; page++ {
		q := url.Values{}
		q.Set("page_size", "50")
		q.Set("user_id_type", d.client.IDType())
		q.Set("department_id_type", departmentIDType)
		if token != "" {
			q.Set("page_token", token)
		}
		path := fmt.Sprintf("/open-apis/contact/v3/functional_roles/%s/members?%s", url.PathEscape(roleID), q.Encode())

		resp, err := d.client.GetClient().Get(ctx, path, nil, larkcore.AccessTokenTypeTenant)
		if err != nil {
			d.logger.Error("Failed to list role members", zap.String("role_id", roleID), zap.Error(err))
			return nil, fmt.Errorf("failed to list members of role %s: %w", roleID, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("list members of role %s: http %d", roleID, resp.StatusCode)
		}

		var body roleMembersPage
		if err := json.Unmarshal(resp.RawBody, &body); err != nil {
			return nil, fmt.Errorf("failed to decode members of role %s: %w", roleID, err)
		}
		if body.Code != 0 {
			return nil, fmt.Errorf("list members of role %s: code=%d, msg=%s", roleID, body.Code, body.Msg)
		}
		for _, m := range body.Data.Members {
			members = append(members, m.MemberID)
		}
		if !body.Data.HasMore || body.Data.PageToken == "" {
			break
		}
		token = body.Data.PageToken
	}

	d.logger.Info("Role members listed", zap.String("role_id", roleID), zap.Int("count", len(members)))
	return members, nil
}

var _ port.Directory = (*Directory)(nil)
