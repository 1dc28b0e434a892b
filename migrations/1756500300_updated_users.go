package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// Adds the school profile fields to the built-in users auth collection.
func init() {
	m.Register(func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		collection.Fields.Add(
			&core.SelectField{
				Name:      "role",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"student", "parent", "teacher", "admin"},
			},
			&core.TextField{Name: "phone", Max: 30},
			&core.TextField{Name: "student_id", Max: 50},
			&core.TextField{Name: "grade", Max: 20},
			&core.JSONField{Name: "children", MaxSize: 5000},
		)

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		for _, name := range []string{"role", "phone", "student_id", "grade", "children"} {
			collection.Fields.RemoveByName(name)
		}

		return app.Save(collection)
	})
}
