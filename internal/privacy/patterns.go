package privacy

import "regexp"

// patternDef is one uncompiled registry entry
type patternDef struct {
	kind    Kind
	pattern string
}

// Value fragments shared by keyword-anchored patterns. Identifier values must
// contain at least one digit so that keywords followed by prose do not match.
const (
	idValue    = `[A-Za-z0-9\-]{0,12}\d[A-Za-z0-9\-]{0,12}`
	phoneBody  = `(?:\(\d{3}\)\s?|\b\d{3}[\s.\-])\d{3}[\s.\-]\d{4}\b`
	octet      = `(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)`
	monthNames = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`
)

// hipaaPatterns covers the HIPAA Safe Harbor identifier categories that can
// be recognised in text. Full-face photographs are out of reach for a text
// scanner and have no entry.
func hipaaPatterns() []patternDef {
	return []patternDef{
		// Names with an honorific or an explicit label
		{KindNames, `\b(?:Mr|Mrs|Ms|Miss|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2}\b`},
		{KindNames, `\b(?i:patient(?:\s+name)?|name)\s*:\s*[A-Z][a-z]+(?:\s+[A-Z]\.?)?\s+[A-Z][a-z]+\b`},

		// Street addresses and ZIP codes
		{KindGeographic, `\b\d{1,5}\s+(?:[A-Z][a-z]+\s+){1,3}(?i:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way|place|pl)\b\.?`},
		{KindGeographic, `\b[A-Z]{2}\s+\d{5}(?:-\d{4})?\b`},
		{KindGeographic, `\b\d{5}-\d{4}\b`},

		// Dates with restricted month and day ranges
		{KindDates, `\b(?:0?[1-9]|1[0-2])[/\-](?:0?[1-9]|[12]\d|3[01])[/\-](?:\d{4}|\d{2})\b`},
		{KindDates, `\b(?:19|20)\d{2}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12]\d|3[01])\b`},
		{KindDates, `(?i)\b` + monthNames + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`},
		{KindDates, `(?i)\b\d{1,2}\s+` + monthNames + `\.?\s+\d{4}\b`},

		{KindPhone, `(?:\+1[\s.\-]?)?` + phoneBody},
		{KindPhone, `\+[2-9]\d{0,2}(?:[\s.\-]?\d{2,4}){3,5}\b`},

		{KindFax, `(?i)\bfax\s*(?:number|no\.?|#)?[:\s]*(?:\+?1[\s.\-]?)?` + phoneBody},

		{KindEmail, `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`},

		// Area-group-serial with separators; bare nine-digit runs are too noisy
		{KindSSN, `\b\d{3}-\d{2}-\d{4}\b`},
		{KindSSN, `\b\d{3} \d{2} \d{4}\b`},

		{KindMRN, `(?i)\b(?:MRN|medical\s+record(?:\s+(?:number|no\.?|#))?)[:\s#]*` + idValue + `\b`},

		{KindHealthPlan, `(?i)\b(?:member|subscriber|policy|health\s+plan|insurance|beneficiary)\s*(?:id|#|no\.?|number)[:\s#]*` + idValue + `\b`},
		// Medicare Beneficiary Identifier
		{KindHealthPlan, `\b[1-9][AC-HJKMNP-RT-Y][AC-HJKMNP-RT-Y0-9]\d[AC-HJKMNP-RT-Y][AC-HJKMNP-RT-Y0-9]\d[AC-HJKMNP-RT-Y]{2}\d{2}\b`},

		{KindAccount, `(?i)\b(?:account|acct)\s*(?:number|no\.?|#)?[:\s#]*\d{4,20}\b`},
		// Payment card numbers
		{KindAccount, `\b(?:\d{4}[\s\-]?){3}\d{4}\b`},

		{KindLicense, `(?i)\b(?:driver'?s?\s+licen[cs]e|licen[cs]e|DEA|NPI)\s*(?:number|no\.?|#)?[:\s#]*` + idValue + `\b`},

		// VIN, then keyword-anchored plates
		{KindVehicle, `\b[A-HJ-NPR-Z0-9]{3}[A-HJ-NPR-Z0-9]{5}[0-9X][A-HJ-NPR-Z0-9]{8}\b`},
		{KindVehicle, `(?i)\b(?:license\s+plate|plate\s*(?:number|no\.?|#)?)[:\s#]*[A-Za-z0-9\-]{0,7}\d[A-Za-z0-9\-]{0,7}\b`},

		{KindDevice, `(?i)\b(?:device|serial|implant|pacemaker)\s*(?:id|number|no\.?|#|s/n)[:\s#]*` + idValue + `\b`},
		// GS1 unique device identifier
		{KindDevice, `\(01\)\d{14}`},

		{KindURL, `\bhttps?://[^\s<>"']+`},
		{KindURL, `\bwww\.[A-Za-z0-9\-]+\.[A-Za-z]{2,}[^\s<>"']*`},

		{KindIP, `\b` + octet + `\.` + octet + `\.` + octet + `\.` + octet + `\b`},
		{KindIP, `\b(?:[0-9A-Fa-f]{1,4}:){7}[0-9A-Fa-f]{1,4}\b`},

		{KindBiometric, `(?i)\b(?:fingerprint|retina|retinal|iris|voice\s*print|biometric)\s*(?:id|template|hash|scan)?[:\s#]*[A-Za-z0-9]{0,20}\d[A-Za-z0-9]{0,20}\b`},

		{KindOtherUnique, `(?i)\b(?:patient|subject|participant|study|enrollment)\s*(?:id|#|no\.?|number)[:\s#]*` + idValue + `\b`},
	}
}

// internationalPatterns covers common non-US identifiers
func internationalPatterns() []patternDef {
	return []patternDef{
		{KindNHSNumber, `(?i)\bNHS\s*(?:number|no\.?|#)?[:\s#]*\d{3}[ \-]?\d{3}[ \-]?\d{4}\b`},
		{KindNationalInsurance, `\b[A-CEGHJ-PR-TW-Z][A-CEGHJ-NPR-TW-Z]\s?\d{2}\s?\d{2}\s?\d{2}\s?[A-D]\b`},
		{KindSIN, `(?i)\bSIN\s*(?:number|no\.?|#)?[:\s#]*\d{3}[ \-]?\d{3}[ \-]?\d{3}\b`},
		{KindIBAN, `\b[A-Z]{2}\d{2}(?:\s?[A-Z0-9]{4}){2,7}(?:\s?[A-Z0-9]{1,3})?\b`},
		{KindPassport, `(?i)\bpassport\s*(?:number|no\.?|#)?[:\s#]*[A-Za-z0-9]{0,8}\d[A-Za-z0-9]{0,8}\b`},
	}
}

// compileDefs compiles definitions into rules, merging entries for the same
// kind and keeping kinds in first-seen order
func compileDefs(defs []patternDef) []PatternRule {
	index := make(map[Kind]int)
	var rules []PatternRule
	for _, def := range defs {
		re := regexp.MustCompile(def.pattern)
		if i, ok := index[def.kind]; ok {
			rules[i].Matchers = append(rules[i].Matchers, re)
			continue
		}
		index[def.kind] = len(rules)
		rules = append(rules, PatternRule{Kind: def.kind, Matchers: []*regexp.Regexp{re}})
	}
	return rules
}

// BuiltinRules returns freshly compiled HIPAA and international rules
func BuiltinRules() []PatternRule {
	defs := append(hipaaPatterns(), internationalPatterns()...)
	return compileDefs(defs)
}
