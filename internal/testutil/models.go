package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/docmap/internal/model"
	"github.com/roach88/docmap/internal/schema"
)

// Fixture models shared by the mapper, changeset and store tests.
//
//	user     name (wire "n"), email (encrypted), age, status, born, manager
//	         (wire "manager_id"), tags, address -> address, phones -> []phone,
//	         legacy -> "ghost" (never registered, opaque), password (excluded)
//	address  street, city, zip (wire "postal_code")
//	phone    kind, number

type Address struct {
	meta   model.Meta
	Street string
	City   string
	Zip    string
}

func (a *Address) Tag() string       { return "address" }
func (a *Address) Meta() *model.Meta { return &a.meta }

type Phone struct {
	meta   model.Meta
	Kind   string
	Number string
}

func (p *Phone) Tag() string       { return "phone" }
func (p *Phone) Meta() *model.Meta { return &p.meta }

type User struct {
	meta     model.Meta
	Name     string
	Email    string
	Age      int
	Status   string
	Born     time.Time
	Manager  primitive.ObjectID
	Tags     []string
	Address  *Address
	Phones   []*Phone
	Legacy   *Address
	Password string
}

func (u *User) Tag() string       { return "user" }
func (u *User) Meta() *model.Meta { return &u.meta }

// AfterInflate assigns defaults for fields the document lacked.
func (u *User) AfterInflate() {
	if u.Status == "" {
		u.Status = "active"
	}
}

// SetName assigns the name and marks it dirty.
func (u *User) SetName(name string) {
	u.Name = name
	u.meta.Mark("name")
}

var (
	AddressType = schema.MustDeclare("address", func() model.Model { return &Address{} }, []schema.Field{
		schema.Value("street", func(a *Address) string { return a.Street }, func(a *Address, v string) { a.Street = v }),
		schema.Value("city", func(a *Address) string { return a.City }, func(a *Address, v string) { a.City = v }),
		schema.Value("zip", func(a *Address) string { return a.Zip }, func(a *Address, v string) { a.Zip = v }).As("postal_code"),
	})

	PhoneType = schema.MustDeclare("phone", func() model.Model { return &Phone{} }, []schema.Field{
		schema.Value("kind", func(p *Phone) string { return p.Kind }, func(p *Phone, v string) { p.Kind = v }),
		schema.Value("number", func(p *Phone) string { return p.Number }, func(p *Phone, v string) { p.Number = v }),
	})

	UserType = schema.MustDeclare("user", func() model.Model { return &User{} }, []schema.Field{
		schema.Value("name", func(u *User) string { return u.Name }, func(u *User, v string) { u.Name = v }).As("n"),
		schema.Value("email", func(u *User) string { return u.Email }, func(u *User, v string) { u.Email = v }).Secret(),
		schema.Value("age", func(u *User) int { return u.Age }, func(u *User, v int) { u.Age = v }),
		schema.Value("status", func(u *User) string { return u.Status }, func(u *User, v string) { u.Status = v }),
		schema.Date("born", func(u *User) time.Time { return u.Born }, func(u *User, v time.Time) { u.Born = v }),
		schema.Ref("manager", func(u *User) primitive.ObjectID { return u.Manager }, func(u *User, v primitive.ObjectID) { u.Manager = v }).As("manager_id"),
		schema.Value("tags", func(u *User) []string { return u.Tags }, func(u *User, v []string) { u.Tags = v }),
		schema.One("address", "address", func(u *User) *Address { return u.Address }, func(u *User, v *Address) { u.Address = v }),
		schema.Many("phones", "phone", func(u *User) []*Phone { return u.Phones }, func(u *User, v []*Phone) { u.Phones = v }),
		schema.One("legacy", "ghost", func(u *User) *Address { return u.Legacy }, func(u *User, v *Address) { u.Legacy = v }),
		schema.Value("password", func(u *User) string { return u.Password }, func(u *User, v string) { u.Password = v }),
	}, schema.Exclude("password"), schema.Collection("users"))
)

// Registry returns a fresh registry holding the fixture types.
func Registry(t testing.TB) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(UserType, AddressType, PhoneType))
	return reg
}
