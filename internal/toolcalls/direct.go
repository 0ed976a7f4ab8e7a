package toolcalls

import (
	"time"

	"receptionist-platform/internal/assistant"
	"receptionist-platform/internal/tenants"
)

// Now is the get_current_datetime answer.
type Now struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Weekday  string `json:"weekday"`
	Timezone string `json:"timezone"`
	ISO      string `json:"iso"`
}

var weekdaysES = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

// CurrentTime renders now in the tenant's timezone and language.
func CurrentTime(t tenants.Tenant, now time.Time) Now {
	loc := t.Location()
	local := now.In(loc)
	weekday := local.Weekday().String()
	if assistant.IsSpanish(assistant.LanguageOf(t)) {
		weekday = weekdaysES[local.Weekday()]
	}
	return Now{
		Date:     local.Format("2006-01-02"),
		Time:     local.Format("15:04"),
		Weekday:  weekday,
		Timezone: loc.String(),
		ISO:      local.Format(time.RFC3339),
	}
}

// BusinessInfo is the get_business_info answer.
type BusinessInfo struct {
	Name     string   `json:"name"`
	Phone    string   `json:"phone,omitempty"`
	Email    string   `json:"email,omitempty"`
	Address  string   `json:"address,omitempty"`
	Website  string   `json:"website,omitempty"`
	Hours    string   `json:"hours,omitempty"`
	Services []string `json:"services"`
}

func BusinessInfoFor(t tenants.Tenant) BusinessInfo {
	services := t.Services
	if services == nil {
		services = []string{}
	}
	return BusinessInfo{
		Name:     t.Name,
		Phone:    t.Phone,
		Email:    t.Email,
		Address:  t.Address,
		Website:  t.Website,
		Hours:    t.Hours,
		Services: services,
	}
}
