package session

import (
	"fmt"
	"strings"
)

// Profile is the resolved business record a call is answered for.
type Profile struct {
	Name            string
	Industry        string
	Tone            string
	DefaultLanguage string
}

// ServicePeriod is one open/close window within a day.
type ServicePeriod struct {
	Open  string
	Close string
}

// Service is one bookable service offered by the business.
type Service struct {
	Name            string
	DurationMinutes int
}

// VoiceProfile selects the engine voice for a business.
type VoiceProfile struct {
	Voice    string
	Language string
}

// BusinessConfig is the validated per-business configuration blob.
// All defaults are resolved once by Normalize at session-load time;
// consumers never re-derive them.
type BusinessConfig struct {
	Hours            map[string][]ServicePeriod
	Services         []Service
	Voice            VoiceProfile
	ForwardingNumber string
	BookingRules     string
}

var weekdayNames = []string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

var weekdayLabels = map[string]string{
	"monday":    "Monday",
	"tuesday":   "Tuesday",
	"wednesday": "Wednesday",
	"thursday":  "Thursday",
	"friday":    "Friday",
	"saturday":  "Saturday",
	"sunday":    "Sunday",
}

// Normalize fills defaults for missing fields.
func (c *BusinessConfig) Normalize(defaultVoice string) {
	if c.Voice.Voice == "" {
		c.Voice.Voice = defaultVoice
	}
	if c.Voice.Language == "" {
		c.Voice.Language = "en-US"
	}
	for i := range c.Services {
		if c.Services[i].DurationMinutes <= 0 {
			c.Services[i].DurationMinutes = 30
		}
	}
}

// HoursText renders opening hours as a single human-readable line.
func (c *BusinessConfig) HoursText() string {
	if len(c.Hours) == 0 {
		return "Not specified"
	}

	var entries []string
	for _, day := range weekdayNames {
		periods := c.Hours[day]
		if len(periods) == 0 {
			continue
		}
		var windows []string
		for _, p := range periods {
			windows = append(windows, fmt.Sprintf("%s to %s", p.Open, p.Close))
		}
		entries = append(entries, fmt.Sprintf("%s: %s", weekdayLabels[day], strings.Join(windows, " and ")))
	}

	if len(entries) == 0 {
		return "Not specified"
	}
	return strings.Join(entries, ", ")
}

// ServicesText renders the service list, one service per line.
func (c *BusinessConfig) ServicesText() string {
	if len(c.Services) == 0 {
		return "No specific services listed"
	}

	var lines []string
	for _, s := range c.Services {
		lines = append(lines, fmt.Sprintf("- %s (%d minutes)", s.Name, s.DurationMinutes))
	}
	return strings.Join(lines, "\n")
}

// StaticInfoText renders the hours and services block used in prompts
// and knowledge context.
func (c *BusinessConfig) StaticInfoText() string {
	return fmt.Sprintf(`BUSINESS INFORMATION:
- Hours: %s
- Services:
%s

RULES:
1. Always refer to the business hours and services above when answering related questions.
2. If the caller asks about something not in the services list, say it's not offered and suggest alternatives.`,
		c.HoursText(), c.ServicesText())
}
