package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	reserrors "campsite/internal/reservations/errors"
	"campsite/pkg/config"
	mongotx "campsite/pkg/db/mongo"
	"campsite/pkg/model"
)

const (
	CollectionName = "Reservations"
)

// ReservationRepository is the store contract the coordinator depends on.
// FindOverlapping must reflect the latest committed state at call time and
// return results ordered by start date ascending.
type ReservationRepository interface {
	Save(ctx context.Context, reservation *model.Reservation) (string, error)
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*model.Reservation, error)
	FindByIDAndEmail(ctx context.Context, id string, email string) (*model.Reservation, error)
	FindOverlapping(ctx context.Context, startFrom, endTo model.Date) ([]*model.Reservation, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoReservationRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

// reservationDoc is the persisted shape. Calendar dates are stored as
// midnight UTC; the conversion happens only here, at the storage boundary.
type reservationDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Username  string             `bson:"username"`
	Email     string             `bson:"email"`
	StartFrom time.Time          `bson:"start_from"`
	EndTo     time.Time          `bson:"end_to"`
	CreatedAt time.Time          `bson:"created_at"`
}

func NewMongoReservationRepository(cfg *config.Config) ReservationRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoReservationRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless the call is already
// inside a transaction; wrapping a SessionContext would break transaction
// semantics, so those pass through with a no-op cancel.
func (r *mongoReservationRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		if remaining := time.Until(deadline); remaining < timeout {
			return context.WithTimeout(ctx, remaining)
		}
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoReservationRepository) Save(ctx context.Context, reservation *model.Reservation) (string, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	reservation.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	result, err := r.collection.InsertOne(ctx, toDoc(reservation))
	if err != nil {
		return "", fmt.Errorf("failed to save reservation: %w", err)
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted ID type %T", result.InsertedID)
	}

	reservation.ID = oid.Hex()
	return reservation.ID, nil
}

func (r *mongoReservationRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", reserrors.ErrInvalidID, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}

	if result.DeletedCount == 0 {
		return reserrors.ErrNotFound
	}

	return nil
}

func (r *mongoReservationRepository) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", reserrors.ErrInvalidID, id)
	}

	return r.findOne(ctx, bson.M{"_id": objectID})
}

func (r *mongoReservationRepository) FindByIDAndEmail(ctx context.Context, id string, email string) (*model.Reservation, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", reserrors.ErrInvalidID, id)
	}

	return r.findOne(ctx, bson.M{"_id": objectID, "email": email})
}

func (r *mongoReservationRepository) findOne(ctx context.Context, filter bson.M) (*model.Reservation, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var doc reservationDoc
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}

	return fromDoc(&doc), nil
}

// FindOverlapping returns committed reservations intersecting the inclusive
// range, ordered by start date ascending.
func (r *mongoReservationRepository) FindOverlapping(ctx context.Context, startFrom, endTo model.Date) ([]*model.Reservation, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"start_from": bson.M{"$lte": endTo.UTC()},
		"end_to":     bson.M{"$gte": startFrom.UTC()},
	}

	opts := options.Find().SetSort(bson.D{{Key: "start_from", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*reservationDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode reservations: %w", err)
	}

	reservations := make([]*model.Reservation, 0, len(docs))
	for _, doc := range docs {
		reservations = append(reservations, fromDoc(doc))
	}

	return reservations, nil
}

func (r *mongoReservationRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

func toDoc(reservation *model.Reservation) *reservationDoc {
	return &reservationDoc{
		Username:  reservation.Username,
		Email:     reservation.Email,
		StartFrom: reservation.StartFrom.UTC(),
		EndTo:     reservation.EndTo.UTC(),
		CreatedAt: reservation.CreatedAt,
	}
}

func fromDoc(doc *reservationDoc) *model.Reservation {
	return &model.Reservation{
		ID:        doc.ID.Hex(),
		Username:  doc.Username,
		Email:     doc.Email,
		StartFrom: model.DateOf(doc.StartFrom.UTC()),
		EndTo:     model.DateOf(doc.EndTo.UTC()),
		CreatedAt: doc.CreatedAt,
	}
}
