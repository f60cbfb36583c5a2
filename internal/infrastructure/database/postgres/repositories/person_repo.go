package repositories

import (
	"context"
	"strconv"
	"time"

	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// individualSector is the PATSTAT psn_sector of natural persons.
const individualSector = "INDIVIDUAL"

// personsQuery selects every person of every DOCDB family that has at least
// one person from $1 and an earliest filing year in [$2, $3]. Roles are
// folded per person across the family's applications.
const personsQuery = `
WITH families AS (
    SELECT DISTINCT a.docdb_family_id
    FROM tls201_appln a
    JOIN tls207_pers_appln pa ON pa.appln_id = a.appln_id
    JOIN tls206_person p ON p.person_id = pa.person_id
    WHERE p.person_ctry_code = $1
      AND a.earliest_filing_year BETWEEN $2 AND $3
)
SELECT a.docdb_family_id,
       p.person_id,
       COALESCE(p.person_ctry_code, '') AS country,
       BOOL_OR(pa.applt_seq_nr > 0) AS applicant,
       BOOL_OR(pa.invt_seq_nr > 0) AS inventor,
       COALESCE(p.psn_sector, '') = $4 AS individual
FROM families f
JOIN tls201_appln a ON a.docdb_family_id = f.docdb_family_id
JOIN tls207_pers_appln pa ON pa.appln_id = a.appln_id
JOIN tls206_person p ON p.person_id = pa.person_id
GROUP BY a.docdb_family_id, p.person_id, p.person_ctry_code, p.psn_sector
ORDER BY a.docdb_family_id, p.person_id`

type postgresPersonRepo struct {
	log      logging.Logger
	executor dbtx
}

// NewPersonRepository reads person records from PATSTAT tables.
func NewPersonRepository(conn *postgres.Connection, log logging.Logger) family.Repository {
	return &postgresPersonRepo{log: log, executor: conn.DB()}
}

func (r *postgresPersonRepo) FindPersons(ctx context.Context, q family.Query) ([]family.PersonRecord, error) {
	start := time.Now()
	rows, err := r.executor.QueryContext(ctx, personsQuery, q.Country, q.StartYear, q.EndYear, individualSector)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDataSourceQueryFailed, "failed to query persons").WithDetail(q.Key())
	}
	out, err := scanAll(rows, scanPerson)
	if err != nil {
		code, msg := errors.ErrCodeDataSourceQueryFailed, "failed to iterate person rows"
		if isScanError(err) {
			code, msg = errors.ErrCodeDataSourceParseError, "failed to scan person row"
		}
		return nil, errors.Wrap(err, code, msg).WithDetail(q.Key())
	}

	r.log.Debug("Loaded person records",
		logging.String("query", q.Key()),
		logging.Int("rows", len(out)),
		logging.Duration("elapsed", time.Since(start)),
	)
	if out == nil {
		out = []family.PersonRecord{}
	}
	return out, nil
}

func scanPerson(s rowScanner) (family.PersonRecord, error) {
	var (
		familyID, personID int64
		p                  family.PersonRecord
	)
	if err := s.Scan(&familyID, &personID, &p.Country, &p.Applicant, &p.Inventor, &p.Individual); err != nil {
		return family.PersonRecord{}, err
	}
	p.FamilyID = strconv.FormatInt(familyID, 10)
	p.PersonID = strconv.FormatInt(personID, 10)
	return p, nil
}
