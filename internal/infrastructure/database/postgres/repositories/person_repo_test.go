package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

var personColumns = []string{"docdb_family_id", "person_id", "country", "applicant", "inventor", "individual"}

type PersonRepoTestSuite struct {
	suite.Suite
	mock sqlmock.Sqlmock
	db   *sql.DB
	repo family.Repository
}

func (s *PersonRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)

	log := logging.NewNopLogger()
	s.repo = NewPersonRepository(postgres.NewConnectionWithDB(s.db, log), log)
}

func (s *PersonRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *PersonRepoTestSuite) query() family.Query {
	return family.Query{Country: "NO", StartYear: 2020, EndYear: 2021}
}

func (s *PersonRepoTestSuite) TestFindPersons_Rows() {
	s.mock.ExpectQuery("WITH families AS .* FROM tls201_appln").
		WithArgs("NO", 2020, 2021, "INDIVIDUAL").
		WillReturnRows(sqlmock.NewRows(personColumns).
			AddRow(int64(5001), int64(17), "NO", true, true, true).
			AddRow(int64(5001), int64(18), "US", true, false, false).
			AddRow(int64(5002), int64(19), "", false, true, true))

	got, err := s.repo.FindPersons(context.Background(), s.query())
	s.Require().NoError(err)
	s.Equal([]family.PersonRecord{
		{FamilyID: "5001", PersonID: "17", Country: "NO", Applicant: true, Inventor: true, Individual: true},
		{FamilyID: "5001", PersonID: "18", Country: "US", Applicant: true},
		{FamilyID: "5002", PersonID: "19", Inventor: true, Individual: true},
	}, got)
}

func (s *PersonRepoTestSuite) TestFindPersons_Empty() {
	s.mock.ExpectQuery("WITH families AS").WillReturnRows(sqlmock.NewRows(personColumns))

	got, err := s.repo.FindPersons(context.Background(), s.query())
	s.Require().NoError(err)
	s.NotNil(got)
	s.Empty(got)
}

func (s *PersonRepoTestSuite) TestFindPersons_QueryError() {
	s.mock.ExpectQuery("WITH families AS").WillReturnError(errors.New("relation tls201_appln does not exist"))

	_, err := s.repo.FindPersons(context.Background(), s.query())
	s.Require().Error(err)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDataSourceQueryFailed))
}

func (s *PersonRepoTestSuite) TestFindPersons_ScanError() {
	s.mock.ExpectQuery("WITH families AS").
		WillReturnRows(sqlmock.NewRows(personColumns).AddRow("not-a-number", int64(1), "NO", true, false, false))

	_, err := s.repo.FindPersons(context.Background(), s.query())
	s.Require().Error(err)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDataSourceParseError))
}

func (s *PersonRepoTestSuite) TestFindPersons_RowError() {
	s.mock.ExpectQuery("WITH families AS").
		WillReturnRows(sqlmock.NewRows(personColumns).
			AddRow(int64(1), int64(1), "NO", true, false, false).
			RowError(0, errors.New("connection reset")))

	_, err := s.repo.FindPersons(context.Background(), s.query())
	s.Require().Error(err)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDataSourceQueryFailed))
}

func TestPersonRepoTestSuite(t *testing.T) {
	suite.Run(t, new(PersonRepoTestSuite))
}
