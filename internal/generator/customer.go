// Package generator produces synthetic customer records for ingest and write
// benchmarks.
package generator

import (
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/daryltucker/cache-bench/internal/model"
)

// Generator is not safe for concurrent use.
type Generator struct {
	faker *gofakeit.Faker
}

// New returns a generator; seed 0 picks a random seed.
func New(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Many returns n customers with fresh ids, all under partitionKeyValue.
func (g *Generator) Many(partitionKeyValue string, n int) []model.Customer {
	customers := make([]model.Customer, 0, n)
	for i := 0; i < n; i++ {
		customers = append(customers, g.Single(partitionKeyValue, uuid.NewString(), g.faker.Name()))
	}
	return customers
}

// Single returns one customer with the given id and name and random details.
func (g *Generator) Single(partitionKeyValue, id, name string) model.Customer {
	return model.Customer{
		ID:             id,
		Name:           name,
		City:           g.faker.City(),
		PostalCode:     g.faker.Zip(),
		Region:         g.faker.State(),
		MyPartitionKey: partitionKeyValue,
		UserDefinedID:  g.faker.Number(0, 1000),
	}
}
