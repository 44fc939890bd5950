package rest

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/contactkeeper/internal/server/models"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const dateLayout = "2006-01-02"

var phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// validate runs v.Validate and turns field errors into a 422 response.
func validate(v validation.Validatable) error {
	err := v.Validate()
	if err == nil {
		return nil
	}
	var fields validation.Errors
	if errors.As(err, &fields) {
		return invalid(fields)
	}
	return err
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate bounds the password to what bcrypt can hash.
func (r signupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.EmailFormat),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 72)),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (r emailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
	)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(6, 72)),
	)
}

type roleRequest struct {
	Role models.Role `json:"role"`
}

func (r roleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required, validation.In(models.RoleUser, models.RoleAdmin)),
	)
}

type messageResponse struct {
	Message string `json:"message"`
}

type contactRequest struct {
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Email          string  `json:"email"`
	PhoneNumber    string  `json:"phone_number"`
	Birthday       string  `json:"birthday"`
	AdditionalInfo *string `json:"additional_info"`
}

// normalized trims the name and email fields. Validation and storage both
// see the trimmed values.
func (r contactRequest) normalized() contactRequest {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	return r
}

func (r contactRequest) Validate() error {
	r = r.normalized()
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.RuneLength(1, 50)),
		validation.Field(&r.LastName, validation.Required, validation.RuneLength(1, 50)),
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.PhoneNumber, validation.Required, validation.Match(phoneRegex)),
		validation.Field(&r.Birthday, validation.Required, validation.Date(dateLayout)),
		validation.Field(&r.AdditionalInfo, validation.RuneLength(0, 300)),
	)
}

// model converts a validated request.
func (r contactRequest) model() *models.Contact {
	r = r.normalized()
	birthday, _ := time.Parse(dateLayout, r.Birthday)
	return &models.Contact{
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		Email:          r.Email,
		PhoneNumber:    r.PhoneNumber,
		Birthday:       birthday,
		AdditionalInfo: r.AdditionalInfo,
	}
}

type contactResponse struct {
	*models.Contact
	Birthday string `json:"birthday"`
}

func newContactResponse(c *models.Contact) contactResponse {
	return contactResponse{Contact: c, Birthday: c.Birthday.Format(dateLayout)}
}

func newContactList(cs []*models.Contact) []contactResponse {
	out := make([]contactResponse, 0, len(cs))
	for _, c := range cs {
		out = append(out, newContactResponse(c))
	}
	return out
}
