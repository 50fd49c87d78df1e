package fdtable

import (
	"os"

	"github.com/desertwitch/posixrt/internal/backend"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type mockBackend struct {
	mock.Mock

	kind   backend.Kind
	handle uuid.UUID
}

func newMockBackend(kind backend.Kind) *mockBackend {
	return &mockBackend{kind: kind, handle: uuid.New()}
}

func (m *mockBackend) Kind() backend.Kind { return m.kind }
func (m *mockBackend) Handle() uuid.UUID  { return m.handle }
func (m *mockBackend) Name() string       { return "/mock" }

func (m *mockBackend) Read(p []byte) (int, error) {
	args := m.Called(p)

	return args.Int(0), args.Error(1)
}

func (m *mockBackend) Write(p []byte) (int, error) {
	args := m.Called(p)

	return args.Int(0), args.Error(1)
}

func (m *mockBackend) Seek(offset int64, whence int) (int64, error) {
	args := m.Called(offset, whence)

	return args.Get(0).(int64), args.Error(1) //nolint:forcetypeassert
}

func (m *mockBackend) SetBlocking(blocking bool) error {
	return m.Called(blocking).Error(0)
}

func (m *mockBackend) SetAsync(async bool) error {
	return m.Called(async).Error(0)
}

func (m *mockBackend) Stat() (os.FileInfo, error) {
	args := m.Called()

	fi, _ := args.Get(0).(os.FileInfo)

	return fi, args.Error(1)
}

func (m *mockBackend) Chmod(mode os.FileMode) error {
	return m.Called(mode).Error(0)
}

func (m *mockBackend) Close() error {
	return m.Called().Error(0)
}
