package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "queues000000001",
			"name": "queues",
			"type": "base",
			"system": false,
			"fields": [
				{
					"autogeneratePattern": "[a-z0-9]{15}",
					"hidden": false,
					"id": "text_q_id",
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
					"name": "service_type",
					"type": "relation",
					"collectionId": "svctypes0000001",
					"required": true,
					"maxSelect": 1,
					"cascadeDelete": false
				},
				{
					"name": "location",
					"type": "text",
					"max": 200
				},
				{
					"name": "current_ticket",
					"type": "number",
					"min": 0,
					"onlyInt": true
				},
				{
					"name": "average_wait_time",
					"type": "number",
					"min": 0,
					"onlyInt": true
				},
				{
					"name": "is_active",
					"type": "bool"
				},
				{
					"name": "admin",
					"type": "relation",
					"collectionId": "_pb_users_auth_",
					"required": true,
					"maxSelect": 1,
					"cascadeDelete": false
				},
				{
					"name": "meeting_duration",
					"type": "number",
					"min": 0,
					"onlyInt": true
				},
				{
					"name": "max_queue_length",
					"type": "number",
					"min": 0,
					"onlyInt": true
				},
				{
					"name": "auto_call_next",
					"type": "bool"
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
				"CREATE INDEX idx_queues_admin ON queues (admin)",
				"CREATE INDEX idx_queues_service_type ON queues (service_type)"
			]
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("queues000000001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
