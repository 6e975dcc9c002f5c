package domain

import "time"

// FlagSubject identifies what a configuration flag is raised against.
type FlagSubject string

const (
	FlagSubjectRule     FlagSubject = "rule"
	FlagSubjectTicket   FlagSubject = "ticket"
	FlagSubjectCalendar FlagSubject = "calendar"
	FlagSubjectPolicy   FlagSubject = "policy"
)

// ConfigurationFlag records tenant configuration the engine had to skip:
// un-schedulable tickets, unparseable rules, dead calendars, chain-depth
// overruns. Surfaced to admins; never halts processing of other entities.
type ConfigurationFlag struct {
	ID        string
	TenantID  string
	Subject   FlagSubject
	SubjectID string
	Code      string
	Message   string
	Resolved  bool
	CreatedAt time.Time
}
