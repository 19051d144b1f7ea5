// Package roster converts between CSV files and the host data model:
// people (id plus arbitrary attribute columns), groups (id, size), and
// assignment exports. Plain transformations, no coordination logic.
package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/groupmix/go-controller/internal/schedule"
)

// #region people

// ReadPeople parses a people CSV. The header must contain an "id"
// column; every other column becomes a person attribute. Empty
// attribute cells are omitted.
func ReadPeople(r io.Reader) ([]schedule.Person, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read people header: %w", err)
	}
	idCol := -1
	for i, name := range header {
		if name == "id" {
			idCol = i
			break
		}
	}
	if idCol < 0 {
		return nil, fmt.Errorf("people csv: no \"id\" column in header %v", header)
	}

	var people []schedule.Person
	seen := make(map[string]bool)
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read people line %d: %w", line, err)
		}
		id := record[idCol]
		if id == "" {
			return nil, fmt.Errorf("people csv line %d: empty id", line)
		}
		if seen[id] {
			return nil, fmt.Errorf("people csv line %d: duplicate id %q", line, id)
		}
		seen[id] = true

		p := schedule.Person{ID: id}
		for i, value := range record {
			if i == idCol || value == "" {
				continue
			}
			if p.Attributes == nil {
				p.Attributes = make(map[string]string)
			}
			p.Attributes[header[i]] = value
		}
		people = append(people, p)
	}
	return people, nil
}

// ReadPeopleFile is ReadPeople over a file path.
func ReadPeopleFile(path string) ([]schedule.Person, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadPeople(f)
}

// #endregion

// #region groups

// ReadGroups parses a groups CSV with header columns "id" and "size".
func ReadGroups(r io.Reader) ([]schedule.Group, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read groups header: %w", err)
	}
	idCol, sizeCol := -1, -1
	for i, name := range header {
		switch name {
		case "id":
			idCol = i
		case "size":
			sizeCol = i
		}
	}
	if idCol < 0 || sizeCol < 0 {
		return nil, fmt.Errorf("groups csv: header %v must contain \"id\" and \"size\"", header)
	}

	var groups []schedule.Group
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read groups line %d: %w", line, err)
		}
		size, err := strconv.Atoi(record[sizeCol])
		if err != nil {
			return nil, fmt.Errorf("groups csv line %d: bad size %q", line, record[sizeCol])
		}
		if size <= 0 {
			return nil, fmt.Errorf("groups csv line %d: size must be positive, got %d", line, size)
		}
		groups = append(groups, schedule.Group{ID: record[idCol], Size: size})
	}
	return groups, nil
}

// ReadGroupsFile is ReadGroups over a file path.
func ReadGroupsFile(path string) ([]schedule.Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadGroups(f)
}

// #endregion

// #region export

// WriteAssignments exports a solution's assignment list as CSV with
// header person_id,group_id,session.
func WriteAssignments(w io.Writer, sol schedule.Solution) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"person_id", "group_id", "session"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, a := range sol.Assignments {
		row := []string{a.PersonID, a.GroupID, strconv.Itoa(a.SessionID)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write assignment %s: %w", a.PersonID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAssignmentsFile is WriteAssignments to a file path.
func WriteAssignmentsFile(path string, sol schedule.Solution) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return WriteAssignments(f, sol)
}

// #endregion
