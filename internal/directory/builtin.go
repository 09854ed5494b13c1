package directory

// builtinTZ covers common airports so timezones resolve without a
// downloaded index.
var builtinTZ = map[string]string{
	// India
	"DEL": "Asia/Kolkata",
	"BOM": "Asia/Kolkata",
	"BLR": "Asia/Kolkata",
	"MAA": "Asia/Kolkata",
	"HYD": "Asia/Kolkata",
	"CCU": "Asia/Kolkata",
	"AMD": "Asia/Kolkata",

	// Europe
	"CPH": "Europe/Copenhagen",
	"ARN": "Europe/Stockholm",
	"GOT": "Europe/Stockholm",
	"OSL": "Europe/Oslo",
	"HEL": "Europe/Helsinki",
	"FRA": "Europe/Berlin",
	"MUC": "Europe/Berlin",
	"LHR": "Europe/London",
	"LGW": "Europe/London",
	"MAD": "Europe/Madrid",
	"BCN": "Europe/Madrid",
	"CDG": "Europe/Paris",
	"AMS": "Europe/Amsterdam",
	"ZRH": "Europe/Zurich",

	// US
	"LAX": "America/Los_Angeles",
}
