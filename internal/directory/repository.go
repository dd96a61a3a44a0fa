package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ikahadi647-afk/authbridge/internal/models"
)

// Record is the directory's view of a user: the mapped application user
// plus roster timestamps.
type Record struct {
	ID            string      `bson:"_id" json:"id"`
	Email         string      `bson:"email" json:"email"`
	FullName      string      `bson:"fullName" json:"fullName"`
	CompanyName   string      `bson:"companyName" json:"companyName"`
	Role          models.Role `bson:"role" json:"role"`
	Permissions   []string    `bson:"permissions" json:"permissions"`
	FirstSeenAt   time.Time   `bson:"firstSeenAt" json:"firstSeenAt"`
	LastSeenAt    time.Time   `bson:"lastSeenAt" json:"lastSeenAt"`
	LastSignOutAt time.Time   `bson:"lastSignOutAt,omitempty" json:"lastSignOutAt,omitempty"`
}

// Repository defines persistence operations for the user directory.
type Repository interface {
	Upsert(ctx context.Context, u *models.User) (*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	MarkSignedOut(ctx context.Context, id string) error
}

// Connect opens a MongoDB connection and verifies it with a ping.
// Caller should call client.Disconnect(ctx).
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	clientOpts := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// MongoRepository implements Repository using MongoDB.
type MongoRepository struct {
	col *mongo.Collection
}

// NewMongoRepository creates a new repository for the given collection.
func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Upsert(ctx context.Context, u *models.User) (*Record, error) {
	now := time.Now().UTC()
	filter := bson.M{"_id": u.ID}
	update := bson.M{
		"$set": bson.M{
			"email":       u.Email,
			"fullName":    u.FullName,
			"companyName": u.CompanyName,
			"role":        u.Role,
			"permissions": u.Permissions,
			"lastSeenAt":  now,
		},
		"$setOnInsert": bson.M{"firstSeenAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var rec Record
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&rec); err != nil {
		if err == mongo.ErrNoDocuments {
			// Shouldn't happen because of upsert, but handle gracefully
			return recordOf(u, now, now), nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *MongoRepository) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&rec); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *MongoRepository) MarkSignedOut(ctx context.Context, id string) error {
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{"lastSeenAt": now, "lastSignOutAt": now}}
	// Absent records are skipped: sign-out of a user the roster never saw
	// is not worth an error.
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

// MemoryRepository implements Repository in process, used when MongoDB
// is not configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*Record)}
}

func (r *MemoryRepository) Upsert(ctx context.Context, u *models.User) (*Record, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[u.ID]
	if !ok {
		rec = recordOf(u, now, now)
		r.records[u.ID] = rec
	} else {
		rec.Email = u.Email
		rec.FullName = u.FullName
		rec.CompanyName = u.CompanyName
		rec.Role = u.Role
		rec.Permissions = u.Permissions
		rec.LastSeenAt = now
	}
	out := *rec
	return &out, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (r *MemoryRepository) MarkSignedOut(ctx context.Context, id string) error {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.LastSeenAt = now
		rec.LastSignOutAt = now
	}
	return nil
}

func recordOf(u *models.User, firstSeen, lastSeen time.Time) *Record {
	return &Record{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		CompanyName: u.CompanyName,
		Role:        u.Role,
		Permissions: u.Permissions,
		FirstSeenAt: firstSeen,
		LastSeenAt:  lastSeen,
	}
}
