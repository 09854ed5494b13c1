package postgres

const flightColumns = `
    flight_key, source, airline_code, flight_number,
    dep_airport, arr_airport, dep_tz, arr_tz, icao24, travellers,
    scheduled_departure, scheduled_arrival
`

// Flights without a scheduled departure are always listed so that a
// provider can backfill them.
const queryListFlights = `
SELECT` + flightColumns + `
FROM flights
WHERE scheduled_departure IS NULL
   OR (COALESCE(scheduled_arrival, scheduled_departure) >= $1 AND scheduled_departure <= $2)
ORDER BY scheduled_departure NULLS LAST, flight_key
LIMIT $3
`

const queryGetFlight = `
SELECT` + flightColumns + `
FROM flights
WHERE flight_key = $1
`

const queryInsertFlight = `
INSERT INTO flights (
    flight_key, source, airline_code, flight_number,
    dep_airport, arr_airport, dep_tz, arr_tz, icao24, travellers,
    scheduled_departure, scheduled_arrival
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

const queryDeleteFlight = `
DELETE FROM flights WHERE flight_key = $1
`

const queryDeleteManualFlights = `
DELETE FROM flights WHERE source = 'manual'
`

// Backfill only fills fields that are still empty.
const queryBackfillFlight = `
UPDATE flights SET
    dep_airport         = CASE WHEN dep_airport = '' THEN COALESCE($2, '') ELSE dep_airport END,
    arr_airport         = CASE WHEN arr_airport = '' THEN COALESCE($3, '') ELSE arr_airport END,
    scheduled_departure = COALESCE(scheduled_departure, $4),
    scheduled_arrival   = COALESCE(scheduled_arrival, $5),
    dep_tz              = CASE WHEN dep_tz = '' THEN COALESCE($6, '') ELSE dep_tz END,
    arr_tz              = CASE WHEN arr_tz = '' THEN COALESCE($7, '') ELSE arr_tz END,
    updated_at          = now()
WHERE flight_key = $1
`
