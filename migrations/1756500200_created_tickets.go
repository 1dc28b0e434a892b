package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "tickets00000001",
			"name": "tickets",
			"type": "base",
			"system": false,
			"fields": [
				{
					"autogeneratePattern": "[a-z0-9]{15}",
					"hidden": false,
					"id": "text_t_id",
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
					"name": "ticket_number",
					"type": "number",
					"required": true,
					"min": 1,
					"onlyInt": true
				},
				{
					"name": "code",
					"type": "text",
					"max": 20
				},
				{
					"name": "queue",
					"type": "relation",
					"collectionId": "queues000000001",
					"required": true,
					"maxSelect": 1,
					"cascadeDelete": true
				},
				{
					"name": "user",
					"type": "relation",
					"collectionId": "_pb_users_auth_",
					"required": true,
					"maxSelect": 1,
					"cascadeDelete": true
				},
				{
					"name": "status",
					"type": "select",
					"required": true,
					"maxSelect": 1,
					"values": [
						"waiting",
						"called",
						"in-progress",
						"completed",
						"cancelled"
					]
				},
				{
					"name": "position",
					"type": "number",
					"min": 0,
					"onlyInt": true
				},
				{
					"name": "estimated_wait_time",
					"type": "number",
					"min": 0,
					"onlyInt": true
				},
				{
					"name": "student_info",
					"type": "json",
					"maxSize": 2000
				},
				{
					"name": "called_at",
					"type": "date"
				},
				{
					"name": "completed_at",
					"type": "date"
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
				"CREATE UNIQUE INDEX idx_tickets_queue_number ON tickets (queue, ticket_number)",
				"CREATE INDEX idx_tickets_queue_status ON tickets (queue, status)",
				"CREATE INDEX idx_tickets_user ON tickets (user)"
			]
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets00000001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
