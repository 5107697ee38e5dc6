package client

import "encoding/json"

// Backend paths, relative to the API base URL.
const (
	PathLogin    = "/auth/login/"
	PathRegister = "/auth/register/"
	PathLogout   = "/auth/logout/"
	PathRefresh  = "/token/refresh/"
	PathUserInfo = "/auth/user-info/"
	PathProfile  = "/auth/profile/"
	PathOrders   = "/orders/"
)

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// User is the authenticated account as serialized by the backend.
type User struct {
	ID          int64   `json:"id"`
	Email       string  `json:"email"`
	Username    string  `json:"username"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	PhoneNumber string  `json:"phone_number,omitempty"`
	DateOfBirth *string `json:"date_of_birth,omitempty"`
	DateJoined  string  `json:"date_joined,omitempty"`
	IsActive    bool    `json:"is_active"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	PhoneNumber     string `json:"phone_number,omitempty"`
	DateOfBirth     string `json:"date_of_birth,omitempty"`
}

// AuthResponse is the success body of login and register.
type AuthResponse struct {
	Message string    `json:"message"`
	User    *User     `json:"user"`
	Tokens  TokenPair `json:"tokens"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshResponse carries a new access token; Refresh is set only when the
// backend rotates refresh tokens.
type RefreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// UserInfoResponse is the user-info envelope.
type UserInfoResponse struct {
	User            *User `json:"user"`
	IsAuthenticated bool  `json:"is_authenticated"`
}

type OrderItem struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
	Total       string `json:"total"`
}

type Order struct {
	ID                    int64       `json:"id"`
	OrderNumber           string      `json:"order_number"`
	Status                string      `json:"status"`
	ShippingName          string      `json:"shipping_name"`
	ShippingPhone         string      `json:"shipping_phone"`
	ShippingEmail         string      `json:"shipping_email"`
	ShippingAddress       string      `json:"shipping_address"`
	ShippingDetailAddress string      `json:"shipping_detail_address"`
	ShippingZipcode       string      `json:"shipping_zipcode"`
	TotalAmount           string      `json:"total_amount"`
	FinalAmount           string      `json:"final_amount"`
	CreatedAt             string      `json:"created_at"`
	Items                 []OrderItem `json:"items"`
}

// OrderPage is one page of the order history.
type OrderPage struct {
	Results     []Order `json:"results"`
	Count       int     `json:"count"`
	NumPages    int     `json:"num_pages"`
	CurrentPage int     `json:"current_page"`
	HasPrevious bool    `json:"has_previous"`
	HasNext     bool    `json:"has_next"`
}

// DecodeUser accepts either the user-info envelope or a bare user object.
func DecodeUser(body []byte) (*User, error) {
	var envelope UserInfoResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	if envelope.User != nil {
		return envelope.User, nil
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
