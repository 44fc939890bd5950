package models

import "time"

// Contact is an address-book entry owned by exactly one user.
type Contact struct {
	ID             string     `json:"id"`
	UserID         string     `json:"-"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Email          string     `json:"email"`
	PhoneNumber    string     `json:"phone_number"`
	Birthday       time.Time  `json:"-"`
	AdditionalInfo *string    `json:"additional_info,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// NextBirthday returns the first anniversary of c.Birthday on or after the
// calendar day of from. A Feb 29 birthday falls on Mar 1 in non-leap years.
func (c *Contact) NextBirthday(from time.Time) time.Time {
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)

	next := anniversary(c.Birthday, from.Year())
	if next.Before(from) {
		next = anniversary(c.Birthday, from.Year()+1)
	}
	return next
}

// anniversary builds the birthday in year. time.Date normalizes Feb 29 in a
// non-leap year to Mar 1.
func anniversary(birthday time.Time, year int) time.Time {
	return time.Date(year, birthday.Month(), birthday.Day(), 0, 0, 0, 0, time.UTC)
}
