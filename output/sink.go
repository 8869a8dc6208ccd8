package output

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/tsinghua-fib-lab/atsc-oss/entity"
)

// sink 落盘后端
type sink interface {
	writeCycles(recs []entity.CycleRecord) error
	writeEmergencies(recs []entity.EmergencyRecord) error
	close() error
}

// noneSink 丢弃全部记录
type noneSink struct{}

func (noneSink) writeCycles(recs []entity.CycleRecord) error          { return nil }
func (noneSink) writeEmergencies(recs []entity.EmergencyRecord) error { return nil }
func (noneSink) close() error                                         { return nil }

// sqliteSink 写入本地SQLite文件
type sqliteSink struct {
	db *sql.DB
}

func newSQLiteSink(path string) (*sqliteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite output %s: %w", path, err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS cycles (
			step INTEGER,
			time DOUBLE,
			junction_id INTEGER,
			phase_id TEXT,
			command TEXT,
			mode TEXT,
			overlay TEXT,
			degraded INTEGER,
			total_wait DOUBLE
		);
		CREATE TABLE IF NOT EXISTS emergencies (
			event_id TEXT PRIMARY KEY,
			junction_id INTEGER,
			approach TEXT,
			detected_time DOUBLE,
			resolved_time DOUBLE,
			timed_out INTEGER
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create output tables: %w", err)
	}
	return &sqliteSink{db: db}, nil
}

func (s *sqliteSink) writeCycles(recs []entity.CycleRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		"INSERT INTO cycles (step, time, junction_id, phase_id, command, mode, overlay, degraded, total_wait) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range recs {
		if _, err := stmt.Exec(r.Step, r.Time, r.JunctionID, r.PhaseID, r.Command, r.Mode, r.Overlay, r.Degraded, r.TotalWait); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteSink) writeEmergencies(recs []entity.EmergencyRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		"INSERT INTO emergencies (event_id, junction_id, approach, detected_time, resolved_time, timed_out) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range recs {
		if _, err := stmt.Exec(r.EventID, r.JunctionID, r.Approach, r.DetectedTime, r.ResolvedTime, r.TimedOut); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteSink) close() error {
	return s.db.Close()
}

// mongoSink 写入MongoDB，集合名为{col}.cycles与{col}.emergencies
type mongoSink struct {
	client      *mongo.Client
	cycles      *mongo.Collection
	emergencies *mongo.Collection
}

func newMongoSink(uri, db, col string) (*mongoSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo output: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo output: %w", err)
	}
	return &mongoSink{
		client:      client,
		cycles:      client.Database(db).Collection(col + ".cycles"),
		emergencies: client.Database(db).Collection(col + ".emergencies"),
	}, nil
}

func (s *mongoSink) writeCycles(recs []entity.CycleRecord) error {
	docs := make([]interface{}, len(recs))
	for i, r := range recs {
		docs[i] = r
	}
	_, err := s.cycles.InsertMany(context.Background(), docs)
	return err
}

func (s *mongoSink) writeEmergencies(recs []entity.EmergencyRecord) error {
	docs := make([]interface{}, len(recs))
	for i, r := range recs {
		docs[i] = r
	}
	_, err := s.emergencies.InsertMany(context.Background(), docs)
	return err
}

func (s *mongoSink) close() error {
	return s.client.Disconnect(context.Background())
}
