package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "svctypes0000001",
			"name": "service_types",
			"type": "base",
			"system": false,
			"fields": [
				{
					"autogeneratePattern": "[a-z0-9]{15}",
					"hidden": false,
					"id": "text_st_id",
					"max": 15,
					"min": 15,
					"name": "id",
					"pattern": "^[a-z0-9]+$",
					"presentable": false,
					"primaryKey": true,
					"required": true,
					"system": true,
					"type": "text"
				},
				{
					"name": "name",
					"type": "text",
					"required": true,
					"max": 100
				},
				{
					"name": "description",
					"type": "text",
					"max": 500
				},
				{
					"name": "category",
					"type": "select",
					"required": true,
					"maxSelect": 1,
					"values": [
						"academic",
						"administrative",
						"support",
						"extracurricular",
						"other"
					]
				},
				{
					"name": "default_duration",
					"type": "number",
					"min": 0,
					"onlyInt": true
				},
				{
					"name": "is_active",
					"type": "bool"
				},
				{
					"name": "icon",
					"type": "text",
					"max": 50
				},
				{
					"name": "created_by",
					"type": "relation",
					"collectionId": "_pb_users_auth_",
					"maxSelect": 1,
					"cascadeDelete": false
				},
				{
					"name": "created",
					"type": "autodate",
					"onCreate": true
				},
				{
					"name": "updated",
					"type": "autodate",
					"onCreate": true,
					"onUpdate": true
				}
			],
			"indexes": [
				"CREATE UNIQUE INDEX idx_service_types_name ON service_types (name)"
			]
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("svctypes0000001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
