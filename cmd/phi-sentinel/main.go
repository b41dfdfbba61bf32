// PHI-Sentinel finds and redacts protected health information in free text.
//
// Usage:
//
//	# Detect identifiers in a file, or stdin when no file is given
//	phi-sentinel detect notes.txt
//
//	# Redact with ordinal tokens
//	echo "SSN 123-45-6789" | phi-sentinel redact
//
//	# Scan a CSV, JSON-lines or Parquet file of items
//	phi-sentinel scan items.parquet --concurrency 16
//
//	# Scan a large file in overlapping windows
//	phi-sentinel stream dump.log --chunk-size 65536 --overlap 256
//
//	# Show the last audit events of a project
//	phi-sentinel audit tail --project study-42 --limit 20
//
//	# Serve health, metrics and the live event feed
//	phi-sentinel monitor
package main

func main() {
	Execute()
}
