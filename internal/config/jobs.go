package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rlscode/athena-snapshop/internal/schema"
	"github.com/rlscode/athena-snapshop/internal/snapshot"
)

var (
	bigint   = schema.BigInteger
	integer  = schema.Integer
	float    = schema.FloatingPoint
	boolean  = schema.Boolean
	text     = schema.Text
	date     = schema.Date
	datetime = schema.DateTime
)

// timeEntriesColumns is the column map of the time entries snapshot.
var timeEntriesColumns = map[string]schema.DestinationType{
	"id":                          bigint,
	"project_code":                text,
	"user_id":                     bigint,
	"activity_name":               text,
	"duration":                    float,
	"formatted_duration":          text,
	"billable_duration":           float,
	"formatted_billable_duration": text,
	"billable":                    boolean,
	"visible":                     boolean,
	"prebill_id":                  bigint,
	"date":                        date,
	"reviewed":                    boolean,
	"currency_id":                 bigint,
	"billed_amount":               float,
	"description":                 text,
	"hours_cost":                  float,
	"hours_base_currency_cost":    float,
	"hours_rate":                  float,
	"hours_standard_rate":         float,
	"billing_status":              text,
	"created_at":                  datetime,
	"updated_at":                  datetime,
	"last_update_time":            datetime,
}

// prebillsColumns is the column map of the prebills snapshot. Money columns
// load as float.
var prebillsColumns = map[string]schema.DestinationType{
	"id":                            bigint,
	"state":                         text,
	"reviewed_at":                   datetime,
	"issued_at":                     datetime,
	"sent_at":                       datetime,
	"invoiced_at":                   datetime,
	"partial_payment_at":            datetime,
	"payment_at":                    datetime,
	"from_date":                     date,
	"to_date":                       date,
	"client_code":                   text,
	"amount":                        float,
	"agreement_id":                  bigint,
	"rate_currency_id":              bigint,
	"amount_currency_id":            bigint,
	"base_currency_id":              bigint,
	"exchange_rate":                 float,
	"discount_type":                 text,
	"discount_percentage":           float,
	"discount_amount":               float,
	"billing_strategy":              text,
	"user_id":                       bigint,
	"responsible_user_id":           bigint,
	"secondary_responsible_user_id": bigint,
	"total_minutes_billed":          integer,
	"total_minutes_worked":          integer,
	"honorarium_amount":             float,
	"honorarium_vat":                float,
	"honorarium_tax_percentage":     float,
	"expenses_amount":               float,
	"expenses_vat":                  float,
	"expenses_tax_percentage":       float,
	"includes_honorarium":           boolean,
	"includes_expenses":             boolean,
	"billing_currency_id":           bigint,
	"created_at":                    datetime,
	"updated_at":                    datetime,
	"last_update_time":              datetime,
}

// BuiltinJobs returns the default catalogue: Time Entries then Prebills.
// Queries and destinations can be overridden through getenv.
func BuiltinJobs(getenv func(string) string) []snapshot.Job {
	or := func(k, d string) string {
		if v := getenv(k); v != "" {
			return v
		}
		return d
	}
	return []snapshot.Job{
		{
			Name:        "Time Entries",
			Query:       or("TIME_ENTRIES_QUERY", "SELECT * FROM time_entries"),
			Destination: or("TIME_ENTRIES_TABLE", "time_entries_history"),
			ColumnTypes: copyTypes(timeEntriesColumns),
		},
		{
			Name:        "Prebills",
			Query:       or("PREBILLS_QUERY", "SELECT * FROM prebills"),
			Destination: or("PREBILLS_TABLE", "prebills_history"),
			ColumnTypes: copyTypes(prebillsColumns),
		},
	}
}

func copyTypes(m map[string]schema.DestinationType) map[string]schema.DestinationType {
	out := make(map[string]schema.DestinationType, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// jobsFile is the YAML layout of JOBS_FILE:
//
//	jobs:
//	  - name: Prebills
//	    query: SELECT * FROM prebills
//	    destination: prebills_history
//	    columns:
//	      id: bigint
//	      amount: decimal(15,2)
type jobsFile struct {
	Jobs []struct {
		Name        string            `yaml:"name"`
		Query       string            `yaml:"query"`
		Destination string            `yaml:"destination"`
		Columns     map[string]string `yaml:"columns"`
	} `yaml:"jobs"`
}

// LoadJobsFile reads a YAML job catalogue. Column type spellings follow
// schema.Parse.
func LoadJobsFile(path string) ([]snapshot.Job, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: jobs file: %w", err)
	}
	return ParseJobs(raw)
}

// ParseJobs decodes a YAML job catalogue.
func ParseJobs(raw []byte) ([]snapshot.Job, error) {
	var f jobsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("config: jobs file: %w", err)
	}
	jobs := make([]snapshot.Job, 0, len(f.Jobs))
	for i, j := range f.Jobs {
		types := make(map[string]schema.DestinationType, len(j.Columns))
		for col, spelling := range j.Columns {
			t, err := schema.Parse(spelling)
			if err != nil {
				return nil, fmt.Errorf("config: jobs[%d] (%s) column %s: %w", i, j.Name, col, err)
			}
			types[col] = t
		}
		jobs = append(jobs, snapshot.Job{
			Name:        j.Name,
			Query:       j.Query,
			Destination: j.Destination,
			ColumnTypes: types,
		})
	}
	return jobs, nil
}
