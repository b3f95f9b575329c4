package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

const rideColumns = `id, rider_id, pickup_lat, pickup_lon, drop_lat, drop_lon, destination, fare, status, COALESCE(driver_id,''), COALESCE(rating,0), COALESCE(feedback,''), COALESCE(payment_method,''), created_at, updated_at`

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO rides(id, rider_id, pickup_lat, pickup_lon, drop_lat, drop_lon, destination, fare, status, created_at, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		r.ID, r.RiderID, r.Pickup.Lat, r.Pickup.Lon, r.Drop.Lat, r.Drop.Lon, r.Destination, r.Fare, r.Status, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id)
	return scanRide(row)
}

// AcceptRide is the single concurrency primitive: one conditional update
// decided by the affected-row count. Exactly one of N racing callers wins.
func (p *PostgresStore) AcceptRide(ctx context.Context, id, driverID string) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rides SET status=$1, driver_id=$2, updated_at=$3 WHERE id=$4 AND status=$5`,
		models.StatusAccepted, driverID, time.Now(), id, models.StatusRequested)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	// lost the race, or unknown ride
	if _, err := p.GetRide(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (p *PostgresStore) TimeoutRide(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rides SET status=$1, driver_id=NULL, updated_at=$2 WHERE id=$3 AND status=$4`,
		models.StatusTimeout, time.Now(), id, models.StatusRequested)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if _, err := p.GetRide(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, status models.RideStatus) (*models.Ride, error) {
	q := `UPDATE rides SET status=$1, updated_at=$2 WHERE id=$3 AND status NOT IN ($4,$5,$6)`
	if status == models.StatusCancelled || status == models.StatusTimeout {
		q = `UPDATE rides SET status=$1, driver_id=NULL, updated_at=$2 WHERE id=$3 AND status NOT IN ($4,$5,$6)`
	}
	if _, err := p.db.ExecContext(ctx, q, status, time.Now(), id,
		models.StatusCompleted, models.StatusCancelled, models.StatusTimeout); err != nil {
		return nil, err
	}
	// re-read whether the guard fired or not; terminal rides pass through
	// unchanged, unknown ids surface as ErrNotFound
	return p.GetRide(ctx, id)
}

func (p *PostgresStore) CompleteRide(ctx context.Context, id, paymentMethod string) (*models.Ride, error) {
	if _, err := p.db.ExecContext(ctx,
		`UPDATE rides SET status=$1, payment_method=$2, updated_at=$3 WHERE id=$4 AND status NOT IN ($5,$6,$7)`,
		models.StatusCompleted, paymentMethod, time.Now(), id,
		models.StatusCompleted, models.StatusCancelled, models.StatusTimeout); err != nil {
		return nil, err
	}
	return p.GetRide(ctx, id)
}

func (p *PostgresStore) RateRide(ctx context.Context, id string, stars int, comment string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rides SET rating=$1, feedback=$2, updated_at=$3 WHERE id=$4`,
		stars, comment, time.Now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ActiveRideForDriver(ctx context.Context, driverID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE driver_id=$1 AND status IN ($2,$3,$4) LIMIT 1`,
		driverID, models.StatusAccepted, models.StatusArrived, models.StatusOnTrip)
	return scanRide(row)
}

func (p *PostgresStore) RidesInStatuses(ctx context.Context, statuses ...models.RideStatus) ([]*models.Ride, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	ph := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = s
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE status IN (`+strings.Join(ph, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpsertDriver(ctx context.Context, d *models.Driver) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO drivers(id, name, phone, vehicle, verified, lat, lon, heading, online, push_token, conn_id, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 ON CONFLICT (id) DO UPDATE SET
		   lat=EXCLUDED.lat, lon=EXCLUDED.lon, heading=EXCLUDED.heading,
		   online=EXCLUDED.online, push_token=EXCLUDED.push_token,
		   conn_id=EXCLUDED.conn_id, updated_at=EXCLUDED.updated_at`,
		d.ID, d.Name, d.Phone, d.Vehicle, d.Verified, d.Loc.Lat, d.Loc.Lon, d.Heading, d.Online, d.PushToken, d.ConnID, time.Now())
	return err
}

func (p *PostgresStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	var d models.Driver
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, phone, vehicle, verified, lat, lon, heading, online, COALESCE(push_token,''), COALESCE(conn_id,''), updated_at FROM drivers WHERE id=$1`, id).
		Scan(&d.ID, &d.Name, &d.Phone, &d.Vehicle, &d.Verified, &d.Loc.Lat, &d.Loc.Lon, &d.Heading, &d.Online, &d.PushToken, &d.ConnID, &d.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (p *PostgresStore) SetDriverOffline(ctx context.Context, connID string) (string, error) {
	var id string
	err := p.db.QueryRowContext(ctx,
		`UPDATE drivers SET online=false, conn_id=NULL, updated_at=$1 WHERE conn_id=$2 RETURNING id`,
		time.Now(), connID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil // unknown handle is a no-op
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	err := row.Scan(&r.ID, &r.RiderID, &r.Pickup.Lat, &r.Pickup.Lon, &r.Drop.Lat, &r.Drop.Lon,
		&r.Destination, &r.Fare, &r.Status, &r.DriverID, &r.Rating, &r.Feedback, &r.PaymentMethod,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
