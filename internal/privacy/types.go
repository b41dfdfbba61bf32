package privacy

// Kind identifies an identifier category, e.g. "ssn" or "geographic"
type Kind string

// HIPAA-class identifier kinds
const (
	KindNames       Kind = "names"
	KindGeographic  Kind = "geographic"
	KindDates       Kind = "dates"
	KindPhone       Kind = "phone"
	KindFax         Kind = "fax"
	KindEmail       Kind = "email"
	KindSSN         Kind = "ssn"
	KindMRN         Kind = "mrn"
	KindHealthPlan  Kind = "health_plan"
	KindAccount     Kind = "account"
	KindLicense     Kind = "license"
	KindVehicle     Kind = "vehicle"
	KindDevice      Kind = "device"
	KindURL         Kind = "url"
	KindIP          Kind = "ip"
	KindBiometric   Kind = "biometric"
	KindOtherUnique Kind = "other_unique"
)

// International identifier kinds
const (
	KindNHSNumber         Kind = "nhs_number"
	KindNationalInsurance Kind = "national_insurance"
	KindSIN               Kind = "sin"
	KindIBAN              Kind = "iban"
	KindPassport          Kind = "passport"
)

// Source records which detector produced a candidate
type Source string

const (
	SourcePattern Source = "pattern"
	SourceEntity  Source = "entity"
)

// Detection is a single detected span. Start and End are half-open byte
// offsets into the scanned text.
type Detection struct {
	Kind       Kind    `json:"kind"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Text       string  `json:"text,omitempty"`
	Source     Source  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// Len returns the span length in bytes
func (d Detection) Len() int {
	return d.End - d.Start
}

// Reduced returns a copy of the detection without its matched text
func (d Detection) Reduced() Detection {
	d.Text = ""
	return d
}

// Result is the output of one detection run
type Result struct {
	Detections  []Detection `json:"detections"`
	Sensitivity Sensitivity `json:"sensitivity"`
	Degraded    bool        `json:"degraded,omitempty"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// Kinds returns the distinct kinds in the result, in order of first
// occurrence
func (r *Result) Kinds() []Kind {
	seen := make(map[Kind]bool, len(r.Detections))
	kinds := make([]Kind, 0, len(r.Detections))
	for _, d := range r.Detections {
		if !seen[d.Kind] {
			seen[d.Kind] = true
			kinds = append(kinds, d.Kind)
		}
	}
	return kinds
}

// KindCounts returns the number of detections per kind
func (r *Result) KindCounts() map[string]int {
	counts := make(map[string]int, len(r.Detections))
	for _, d := range r.Detections {
		counts[string(d.Kind)]++
	}
	return counts
}
