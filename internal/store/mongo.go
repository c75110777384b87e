package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const collectionName = "devices"

// document is the BSON shape of a device. Nullable fields are stored as null,
// never omitted.
type document struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"name"`
	IPAddress string             `bson:"ip_address"`
	Type      string             `bson:"type"`
	Location  *string            `bson:"location"`
	Status    string             `bson:"status"`
	Notes     *string            `bson:"notes"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func (doc document) device() *Device {
	d := &Device{
		ID:        doc.ID.Hex(),
		Name:      doc.Name,
		IPAddress: doc.IPAddress,
		Type:      doc.Type,
		Location:  doc.Location,
		Status:    doc.Status,
		Notes:     doc.Notes,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	normalize(d)
	return d
}

// Mongo stores devices in a MongoDB collection. The client is connected on
// first use and shared for the life of the process; a failed connect is
// remembered and returned to every later caller.
type Mongo struct {
	uri    string
	dbName string

	once   sync.Once
	client *mongo.Client
	coll   *mongo.Collection
	err    error
}

func NewMongo(uri, dbName string) *Mongo {
	return &Mongo{uri: strings.TrimSpace(uri), dbName: strings.TrimSpace(dbName)}
}

func (m *Mongo) collection() (*mongo.Collection, error) {
	m.once.Do(func() {
		var missing []string
		if m.uri == "" {
			missing = append(missing, "MONGODB_URI")
		}
		if m.dbName == "" {
			missing = append(missing, "MONGODB_DB")
		}
		if len(missing) > 0 {
			m.err = fmt.Errorf("%w: missing environment variables: %s", ErrConfig, strings.Join(missing, ", "))
			return
		}
		client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(m.uri))
		if err != nil {
			m.err = fmt.Errorf("mongo connect: %w", err)
			return
		}
		m.client = client
		m.coll = client.Database(m.dbName).Collection(collectionName)
	})
	return m.coll, m.err
}

func (m *Mongo) List(ctx context.Context) ([]Device, error) {
	coll, err := m.collection()
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find devices: %w", err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode devices: %w", err)
	}
	out := make([]Device, 0, len(docs))
	for _, doc := range docs {
		out = append(out, *doc.device())
	}
	return out, nil
}

func (m *Mongo) Create(ctx context.Context, d *Device) (*Device, error) {
	prepareCreate(d)
	oid, err := ParseID(d.ID)
	if err != nil {
		return nil, err
	}
	coll, err := m.collection()
	if err != nil {
		return nil, err
	}
	doc := document{
		ID:        oid,
		Name:      d.Name,
		IPAddress: d.IPAddress,
		Type:      d.Type,
		Location:  d.Location,
		Status:    d.Status,
		Notes:     d.Notes,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert device: %w", err)
	}
	return m.find(ctx, coll, oid)
}

func (m *Mongo) Get(ctx context.Context, id string) (*Device, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	coll, err := m.collection()
	if err != nil {
		return nil, err
	}
	return m.find(ctx, coll, oid)
}

func (m *Mongo) find(ctx context.Context, coll *mongo.Collection, oid primitive.ObjectID) (*Device, error) {
	var doc document
	if err := coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find device: %w", err)
	}
	return doc.device(), nil
}

func (m *Mongo) Update(ctx context.Context, id string, fields Fields, at time.Time) (*Device, error) {
	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}
	set["updated_at"] = at.UTC().Truncate(time.Millisecond)
	return m.set(ctx, id, set)
}

func (m *Mongo) SetStatus(ctx context.Context, id, status string, at time.Time) (*Device, error) {
	return m.set(ctx, id, bson.M{"status": status, "updated_at": at.UTC().Truncate(time.Millisecond)})
}

// set applies a $set and re-reads the document. The re-read is what callers
// get back, not the driver's "return document" option.
func (m *Mongo) set(ctx context.Context, id string, set bson.M) (*Device, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	coll, err := m.collection()
	if err != nil {
		return nil, err
	}
	res, err := coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return nil, fmt.Errorf("update device: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return m.find(ctx, coll, oid)
}

func (m *Mongo) Delete(ctx context.Context, id string) error {
	oid, err := ParseID(id)
	if err != nil {
		return err
	}
	coll, err := m.collection()
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	coll, err := m.collection()
	if err != nil {
		return err
	}
	return coll.Database().Client().Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}
