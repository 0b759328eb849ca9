package settings

import (
	"strings"
	"time"

	"github.com/dukapos/dukapos/internal/shared"
)

// BusinessInfo is the shop-wide configuration shared by every till.
type BusinessInfo struct {
	Name                string    `json:"name"`
	Address             string    `json:"address"`
	Phone               string    `json:"phone"`
	Email               string    `json:"email"`
	Currency            string    `json:"currency"`
	TaxRate             float64   `json:"taxRate"`
	ReportFromEmail     string    `json:"reportFromEmail"`
	ReportToEmail       string    `json:"reportToEmail"`
	HasBusinessPassword bool      `json:"hasBusinessPassword"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// UpdateInput replaces the editable business fields.
type UpdateInput struct {
	Name            string  `json:"name" validate:"required,max=200"`
	Address         string  `json:"address" validate:"max=500"`
	Phone           string  `json:"phone" validate:"max=50"`
	Email           string  `json:"email" validate:"omitempty,email"`
	Currency        string  `json:"currency" validate:"required,len=3,alpha"`
	TaxRate         float64 `json:"taxRate" validate:"gte=0,lt=1"`
	ReportFromEmail string  `json:"reportFromEmail" validate:"omitempty,email"`
	ReportToEmail   string  `json:"reportToEmail" validate:"omitempty,email"`
}

func (in UpdateInput) normalize() UpdateInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.Email = strings.TrimSpace(in.Email)
	in.ReportFromEmail = strings.TrimSpace(in.ReportFromEmail)
	in.ReportToEmail = strings.TrimSpace(in.ReportToEmail)
	return in
}

// PasswordChange sets or rotates the business password.
type PasswordChange struct {
	Current string `json:"currentPassword"`
	New     string `json:"newPassword" validate:"required,min=8,max=72"`
}

// Record is the stored row including the password hash.
type Record struct {
	Info         BusinessInfo
	PasswordHash string
}

func (r Record) info() BusinessInfo {
	info := r.Info
	info.HasBusinessPassword = r.PasswordHash != ""
	return info
}

func validateUpdate(in UpdateInput) error {
	return shared.Validate(in)
}
