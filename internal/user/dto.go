// AngelaMos | 2026
// dto.go

package user

import "time"

type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
	Name     string `json:"name"     validate:"omitempty,max=100"`
	WhatsApp string `json:"whatsapp" validate:"omitempty,max=32"`
}

type SelectPackageRequest struct {
	SelectedCategories []string `json:"selectedCategories" validate:"required,min=1,dive,min=1"`
}

type TopupRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Note   string `json:"note"   validate:"omitempty,max=200"`
}

type PendingTopupRequest struct {
	Amount        int64  `json:"amount"        validate:"required,gt=0"`
	PaymentMethod string `json:"paymentMethod" validate:"omitempty,oneof=mobile_money cash bank"`
	Note          string `json:"note"          validate:"omitempty,max=200"`
}

type DeductRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Note   string `json:"note"   validate:"omitempty,max=200"`
}

type RefundRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Note   string `json:"note"   validate:"omitempty,max=200"`
}

type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended inactive"`
}

type UserResponse struct {
	Username  string     `json:"username"`
	Name      string     `json:"name"`
	Tier      Tier       `json:"tier"`
	Status    string     `json:"status"`
	Package   Package    `json:"package"`
	Wallet    Wallet     `json:"wallet"`
	CreatedAt *time.Time `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

type WalletResponse struct {
	User        UserResponse `json:"user"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

type CategoriesResponse struct {
	Categories []Category `json:"categories"`
	Currency   string     `json:"currency"`
}

func ToUserResponse(u *User) UserResponse {
	return UserResponse{
		Username:  u.Username,
		Name:      u.Name,
		Tier:      u.Tier,
		Status:    u.Status,
		Package:   u.Package,
		Wallet:    u.Wallet,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func ToUserResponseList(users []*User) []UserResponse {
	responses := make([]UserResponse, 0, len(users))
	for _, u := range users {
		responses = append(responses, ToUserResponse(u))
	}
	return responses
}
