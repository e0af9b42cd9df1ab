package postgres

// images.go contains the hand-written queries for the images table. Every
// query is scoped by owner_id; a record belonging to another owner scans as
// pgx.ErrNoRows, indistinguishable from a missing record.

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Image is the metadata record for one stored image. Description and Tags are
// absent until captioning succeeds; their absence after a completed upload is
// the caller-visible signal that analysis failed.
type Image struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	FileName    string    `json:"file_name"`
	ObjectPath  string    `json:"object_path"`
	SizeBytes   int64     `json:"size_bytes"`
	MimeType    string    `json:"mime_type"`
	Description *string   `json:"description"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const imageColumns = `id, owner_id, file_name, object_path, size_bytes, mime_type,
	description, tags, created_at, updated_at`

func scanImage(row pgx.Row) (Image, error) {
	var i Image
	err := row.Scan(
		&i.ID, &i.OwnerID, &i.FileName, &i.ObjectPath, &i.SizeBytes,
		&i.MimeType, &i.Description, &i.Tags, &i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}

type CreateImageParams struct {
	OwnerID    uuid.UUID
	FileName   string
	ObjectPath string
	SizeBytes  int64
	MimeType   string
}

func (q *Queries) CreateImage(ctx context.Context, arg CreateImageParams) (Image, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO images (owner_id, file_name, object_path, size_bytes, mime_type)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+imageColumns,
		arg.OwnerID, arg.FileName, arg.ObjectPath, arg.SizeBytes, arg.MimeType)
	return scanImage(row)
}

func (q *Queries) GetImage(ctx context.Context, id, ownerID uuid.UUID) (Image, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+imageColumns+`
		 FROM images
		 WHERE id = $1 AND owner_id = $2`,
		id, ownerID)
	return scanImage(row)
}

type UpdateImageMetadataParams struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	FileName    *string
	Description *string
	Tags        []string
}

// UpdateImageMetadata patches the mutable metadata fields. Nil pointer /
// nil slice means "leave unchanged".
func (q *Queries) UpdateImageMetadata(ctx context.Context, arg UpdateImageMetadataParams) (Image, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE images
		 SET file_name   = COALESCE($3, file_name),
		     description = COALESCE($4, description),
		     tags        = COALESCE($5, tags),
		     updated_at  = now()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+imageColumns,
		arg.ID, arg.OwnerID, arg.FileName, arg.Description, arg.Tags)
	return scanImage(row)
}

// SetImageCaption overwrites description and tags after a successful analysis.
func (q *Queries) SetImageCaption(ctx context.Context, id, ownerID uuid.UUID, description string, tags []string) (Image, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE images
		 SET description = $3, tags = $4, updated_at = now()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+imageColumns,
		id, ownerID, description, tags)
	return scanImage(row)
}

func (q *Queries) DeleteImage(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM images WHERE id = $1 AND owner_id = $2`,
		id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (q *Queries) ListImages(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]Image, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+imageColumns+`
		 FROM images
		 WHERE owner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Image
	for rows.Next() {
		i, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (q *Queries) CountImages(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx,
		`SELECT count(*) FROM images WHERE owner_id = $1`, ownerID).Scan(&n)
	return n, err
}
