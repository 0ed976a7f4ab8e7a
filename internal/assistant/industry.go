package assistant

import (
	"strings"
	"text/template"
)

// Industry is the closed set of business types with a dedicated prompt profile.
type Industry string

const (
	IndustryDentalClinic  Industry = "dental_clinic"
	IndustryMedicalClinic Industry = "medical_clinic"
	IndustryBeautySalon   Industry = "beauty_salon"
	IndustryRestaurant    Industry = "restaurant"
	IndustryLegal         Industry = "legal"
	IndustryRealEstate    Industry = "real_estate"
	IndustryFitness       Industry = "fitness"
	IndustryGeneral       Industry = "general"
)

// ParseIndustry maps stored values onto the enum; anything unknown is general.
func ParseIndustry(s string) Industry {
	i := Industry(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := profiles[i]; ok {
		return i
	}
	return IndustryGeneral
}

// localized holds the Spanish and English variant of a value.
type localized[T any] struct {
	ES T
	EN T
}

func (l localized[T]) pick(spanish bool) T {
	if spanish {
		return l.ES
	}
	return l.EN
}

// profile is one industry variant: its role template, default services and the
// create_appointment fields required out of the box.
type profile struct {
	Role           localized[*template.Template]
	Services       localized[[]string]
	RequiredFields []string
}

func role(name, text string) *template.Template {
	return template.Must(template.New(name).Parse(text))
}

var profiles = map[Industry]profile{
	IndustryDentalClinic: {
		Role: localized[*template.Template]{
			ES: role("dental_es", `Eres la recepcionista virtual de la clínica dental {{.Name}}. Atiendes a pacientes con amabilidad y calma, gestionas citas de revisión y tratamientos, y nunca das diagnósticos ni consejos médicos.`),
			EN: role("dental_en", `You are the virtual receptionist of {{.Name}}, a dental clinic. You help patients kindly and calmly, manage check-ups and treatment appointments, and never give diagnoses or medical advice.`),
		},
		Services: localized[[]string]{
			ES: []string{"Revisión y limpieza dental", "Empastes", "Ortodoncia", "Blanqueamiento dental", "Implantes", "Urgencias dentales"},
			EN: []string{"Check-up and cleaning", "Fillings", "Orthodontics", "Teeth whitening", "Implants", "Dental emergencies"},
		},
		RequiredFields: []string{"name", "email", "phone", "service", "date", "time"},
	},
	IndustryMedicalClinic: {
		Role: localized[*template.Template]{
			ES: role("medical_es", `Eres la recepcionista virtual del centro médico {{.Name}}. Gestionas citas con discreción, no das diagnósticos y derivas cualquier urgencia al 112.`),
			EN: role("medical_en", `You are the virtual receptionist of {{.Name}}, a medical practice. You book appointments discreetly, never give diagnoses, and direct any emergency to the emergency number.`),
		},
		Services: localized[[]string]{
			ES: []string{"Medicina general", "Pediatría", "Análisis clínicos", "Revisión anual"},
			EN: []string{"General practice", "Pediatrics", "Lab tests", "Annual check-up"},
		},
		RequiredFields: []string{"name", "phone", "service", "date", "time"},
	},
	IndustryBeautySalon: {
		Role: localized[*template.Template]{
			ES: role("beauty_es", `Eres la recepcionista virtual del salón de belleza {{.Name}}. Tienes un tono cercano y alegre y ayudas a reservar tratamientos.`),
			EN: role("beauty_en", `You are the virtual receptionist of {{.Name}}, a beauty salon. You are warm and upbeat and help clients book treatments.`),
		},
		Services: localized[[]string]{
			ES: []string{"Corte de pelo", "Coloración", "Manicura", "Pedicura", "Tratamiento facial"},
			EN: []string{"Haircut", "Coloring", "Manicure", "Pedicure", "Facial"},
		},
		RequiredFields: []string{"name", "phone", "service", "date", "time"},
	},
	IndustryRestaurant: {
		Role: localized[*template.Template]{
			ES: role("restaurant_es", `Eres el asistente de reservas del restaurante {{.Name}}. Gestionas reservas de mesa e indicas el número de comensales en las notas.`),
			EN: role("restaurant_en", `You are the reservations assistant of {{.Name}}, a restaurant. You book tables and record the party size in the notes.`),
		},
		Services: localized[[]string]{
			ES: []string{"Reserva de mesa", "Menú degustación", "Eventos privados"},
			EN: []string{"Table reservation", "Tasting menu", "Private events"},
		},
		RequiredFields: []string{"name", "phone", "date", "time", "notes"},
	},
	IndustryLegal: {
		Role: localized[*template.Template]{
			ES: role("legal_es", `Eres la recepcionista virtual del despacho {{.Name}}. Agendas consultas iniciales con formalidad y nunca ofreces asesoramiento jurídico.`),
			EN: role("legal_en", `You are the virtual receptionist of {{.Name}}, a law firm. You schedule initial consultations formally and never give legal advice.`),
		},
		Services: localized[[]string]{
			ES: []string{"Consulta inicial", "Derecho laboral", "Derecho de familia", "Derecho mercantil"},
			EN: []string{"Initial consultation", "Employment law", "Family law", "Corporate law"},
		},
		RequiredFields: []string{"name", "email", "phone", "service", "date", "time"},
	},
	IndustryRealEstate: {
		Role: localized[*template.Template]{
			ES: role("realestate_es", `Eres el asistente virtual de la inmobiliaria {{.Name}}. Agendas visitas a inmuebles y tomas nota del inmueble de interés.`),
			EN: role("realestate_en", `You are the virtual assistant of {{.Name}}, a real estate agency. You schedule property viewings and note the property of interest.`),
		},
		Services: localized[[]string]{
			ES: []string{"Visita a inmueble", "Tasación", "Asesoría de compra", "Gestión de alquiler"},
			EN: []string{"Property viewing", "Valuation", "Buyer advisory", "Rental management"},
		},
		RequiredFields: []string{"name", "phone", "service", "date", "time", "notes"},
	},
	IndustryFitness: {
		Role: localized[*template.Template]{
			ES: role("fitness_es", `Eres el asistente virtual del centro deportivo {{.Name}}. Reservas clases y sesiones de entrenamiento con energía y buen humor.`),
			EN: role("fitness_en", `You are the virtual assistant of {{.Name}}, a fitness center. You book classes and training sessions with energy and good humor.`),
		},
		Services: localized[[]string]{
			ES: []string{"Entrenamiento personal", "Clase de prueba", "Yoga", "Pilates"},
			EN: []string{"Personal training", "Trial class", "Yoga", "Pilates"},
		},
		RequiredFields: []string{"name", "phone", "service", "date", "time"},
	},
	IndustryGeneral: {
		Role: localized[*template.Template]{
			ES: role("general_es", `Eres la recepcionista virtual de {{.Name}}. Atiendes llamadas con amabilidad, resuelves dudas sobre el negocio y gestionas citas.`),
			EN: role("general_en", `You are the virtual receptionist of {{.Name}}. You answer calls kindly, resolve questions about the business and manage appointments.`),
		},
		Services: localized[[]string]{
			ES: []string{"Cita general"},
			EN: []string{"General appointment"},
		},
		RequiredFields: []string{"name", "phone", "service", "date", "time"},
	},
}

func profileFor(i Industry) profile {
	if p, ok := profiles[i]; ok {
		return p
	}
	return profiles[IndustryGeneral]
}
