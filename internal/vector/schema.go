package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

const DefaultClass = "Document"

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// Properties of the embedding class. Vectors are supplied by the caller.
func Properties() []*models.Property {
	return []*models.Property{
		{
			Name:     "documentId",
			DataType: []string{"string"}, // exact match for scoped queries
		},
		{
			Name:     "name",
			DataType: []string{"text"},
		},
	}
}

// EnsureSchema creates the class if missing and adds any properties it lacks.
func EnsureSchema(ctx context.Context, client SchemaClient, className string) error {
	if className == "" {
		className = DefaultClass
	}
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := Properties()

	if !exists {
		class := &models.Class{
			Class:       className,
			Description: "One embedding per ingested document",
			Vectorizer:  "none",
			Properties:  properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, className, p); err != nil {
				return err
			}
		}
	}

	return nil
}
