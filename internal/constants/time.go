package constants

const (
	// TimeFormat is the standard time format used throughout the application (HH:MM)
	TimeFormat = "15:04"

	// DisplayFormat renders reminder instants for the habit list (DD-MM-YYYY HH:mm)
	DisplayFormat = "02-01-2006 15:04"
)
