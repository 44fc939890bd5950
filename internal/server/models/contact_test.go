package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestContact_NextBirthday(t *testing.T) {
	tests := []struct {
		name     string
		birthday time.Time
		from     time.Time
		want     time.Time
	}{
		{"later this year", date(1990, time.June, 15), date(2026, time.June, 10), date(2026, time.June, 15)},
		{"today", date(1990, time.June, 15), date(2026, time.June, 15), date(2026, time.June, 15)},
		{"already passed", date(1990, time.January, 2), date(2026, time.June, 10), date(2027, time.January, 2)},
		{"year wrap", date(1985, time.January, 3), date(2026, time.December, 29), date(2027, time.January, 3)},
		{"leap day in non-leap year", date(2000, time.February, 29), date(2026, time.February, 20), date(2026, time.March, 1)},
		{"leap day in leap year", date(2000, time.February, 29), date(2028, time.February, 20), date(2028, time.February, 29)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Contact{Birthday: tt.birthday}
			assert.Equal(t, tt.want, c.NextBirthday(tt.from))
		})
	}
}

func TestContact_NextBirthday_IgnoresTimeOfDay(t *testing.T) {
	c := &Contact{Birthday: date(1990, time.June, 15)}
	from := time.Date(2026, time.June, 15, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, date(2026, time.June, 15), c.NextBirthday(from))
}

func TestUser_Profile(t *testing.T) {
	created := date(2026, time.March, 1)
	u := &User{ID: "u1", Email: "a@x.com", PasswordHash: "hash", Role: RoleAdmin, Verified: true, AvatarURL: "https://img", CreatedAt: created}

	assert.Equal(t, &Profile{ID: "u1", Email: "a@x.com", Role: RoleAdmin, Verified: true, AvatarURL: "https://img", CreatedAt: created}, u.Profile())
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.Com "))
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("root").Valid())
}
