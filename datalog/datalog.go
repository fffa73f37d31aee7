/*
	datalog.go: Log sensor data as it is received. Bucket data into timestamp time slots.
	Tables are created from the Go struct of the first row logged to them.
*/

package datalog

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const (
	LOG_TIMESTAMP_RESOLUTION = 250 * time.Millisecond
	queueLen                 = 1024
	timestampTable           = "timestamp"
)

type timestampRow struct {
	id    int64
	Clock time.Time
}

type SQLiteMarshal struct {
	FieldType string
	Marshal   func(v reflect.Value) string
}

func boolMarshal(v reflect.Value) string {
	if v.Bool() {
		return "1"
	}
	return "0"
}

func structCanBeMarshalled(v reflect.Value) bool {
	m := v.MethodByName("String")
	return m.IsValid() && !m.IsNil()
}

func intMarshal(v reflect.Value) string {
	return strconv.FormatInt(v.Int(), 10)
}

func uintMarshal(v reflect.Value) string {
	return strconv.FormatUint(v.Uint(), 10)
}

func floatMarshal(v reflect.Value) string {
	return strconv.FormatFloat(v.Float(), 'f', 10, 64)
}

func stringMarshal(v reflect.Value) string {
	return v.String()
}

func notsupportedMarshal(v reflect.Value) string {
	return ""
}

func structMarshal(v reflect.Value) string {
	if structCanBeMarshalled(v) {
		ret := v.MethodByName("String").Call(nil)
		if len(ret) > 0 {
			return ret[0].String()
		}
	}
	return ""
}

var sqliteMarshalFunctions = map[string]SQLiteMarshal{
	"bool":         {FieldType: "INTEGER", Marshal: boolMarshal},
	"int":          {FieldType: "INTEGER", Marshal: intMarshal},
	"uint":         {FieldType: "INTEGER", Marshal: uintMarshal},
	"float":        {FieldType: "REAL", Marshal: floatMarshal},
	"string":       {FieldType: "TEXT", Marshal: stringMarshal},
	"struct":       {FieldType: "STRING", Marshal: structMarshal},
	"notsupported": {FieldType: "notsupported", Marshal: notsupportedMarshal},
}

func sqlTypeAlias(k reflect.Kind) string {
	switch k {
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "uint"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.String:
		return "string"
	case reflect.Struct:
		return "struct"
	}
	return "notsupported"
}

// column is one loggable struct field.
type column struct {
	name  string
	alias string
	value reflect.Value
}

func columns(i interface{}) []column {
	val := reflect.Indirect(reflect.ValueOf(i))
	cols := make([]column, 0, val.NumField())
	for n := 0; n < val.NumField(); n++ {
		f := val.Type().Field(n)
		alias := sqlTypeAlias(f.Type.Kind())
		if alias == "notsupported" || f.Name == "id" || !f.IsExported() {
			continue
		}
		// Check that if the field is a struct that it can be marshalled.
		if alias == "struct" && !structCanBeMarshalled(val.Field(n)) {
			continue
		}
		cols = append(cols, column{name: f.Name, alias: alias, value: val.Field(n)})
	}
	return cols
}

// Logger writes rows to a SQLite database from a single goroutine.
type Logger struct {
	db     *sql.DB
	rows   chan dataLogRow
	tables map[string]bool
	ts     timestampRow
	now    func() time.Time
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	dropped uint64
	log     *logrus.Entry
}

type dataLogRow struct {
	tbl  string
	data interface{}
}

// Open opens (or creates) the database at path and starts the writer.
func Open(path string) (*Logger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	// sqlite does not like concurrent writers
	db.SetMaxOpenConns(1)

	l := &Logger{
		db:     db,
		rows:   make(chan dataLogRow, queueLen),
		tables: make(map[string]bool),
		now:    time.Now,
		log:    logrus.WithField("datalog", path),
	}
	l.wg.Add(1)
	go l.writer()
	return l, nil
}

// Log queues data, a struct, for insertion into tbl. Rows are dropped when
// the queue is full.
func (l *Logger) Log(tbl string, data interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.rows <- dataLogRow{tbl: tbl, data: data}:
	default:
		l.dropped++
	}
}

func (l *Logger) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close flushes queued rows and closes the database.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.rows)
	l.mu.Unlock()

	l.wg.Wait()
	return l.db.Close()
}

// Count returns the number of rows in tbl.
func (l *Logger) Count(tbl string) (int64, error) {
	var n int64
	err := l.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", tbl)).Scan(&n)
	return n, err
}

func (l *Logger) writer() {
	defer l.wg.Done()
	for r := range l.rows {
		// Check if our time bucket has expired or has never been entered.
		if !l.checkTimestamp() || l.ts.id == 0 {
			id, err := l.insertData(timestampRow{Clock: l.ts.Clock}, timestampTable)
			if err != nil {
				l.log.WithError(err).Error("couldn't log timestamp")
				continue
			}
			l.ts.id = id
		}
		if _, err := l.insertData(r.data, r.tbl); err != nil {
			l.log.WithError(err).WithField("table", r.tbl).Error("couldn't log row")
		}
	}
}

/*
checkTimestamp().

	Verify that our current timestamp is within the LOG_TIMESTAMP_RESOLUTION bucket.
	 Returns false if the timestamp was changed, true if it is still valid.
*/
func (l *Logger) checkTimestamp() bool {
	now := l.now()
	if now.Sub(l.ts.Clock) >= LOG_TIMESTAMP_RESOLUTION {
		l.ts.id = 0
		l.ts.Clock = now
		return false
	}
	return true
}

func (l *Logger) makeTable(cols []column, tbl string) error {
	fields := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		fields = append(fields, c.name+" "+sqliteMarshalFunctions[c.alias].FieldType)
	}
	// Add the timestamp_id field to link up with the timestamp table.
	if tbl != timestampTable {
		fields = append(fields, "timestamp_id INTEGER")
	}
	tblCreate := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT, %s)", tbl, strings.Join(fields, ", "))
	l.log.Debug(tblCreate)
	if _, err := l.db.Exec(tblCreate); err != nil {
		return err
	}
	l.tables[tbl] = true
	return nil
}

func (l *Logger) insertData(i interface{}, tbl string) (int64, error) {
	cols := columns(i)
	if !l.tables[tbl] {
		if err := l.makeTable(cols, tbl); err != nil {
			return 0, err
		}
	}

	keys := make([]string, 0, len(cols)+1)
	values := make([]interface{}, 0, len(cols)+1)
	for _, c := range cols {
		keys = append(keys, c.name)
		values = append(values, sqliteMarshalFunctions[c.alias].Marshal(c.value))
	}
	if tbl != timestampTable {
		keys = append(keys, "timestamp_id")
		values = append(values, strconv.FormatInt(l.ts.id, 10))
	}

	tblInsert := fmt.Sprintf("INSERT INTO %s (%s) VALUES(%s)", tbl, strings.Join(keys, ","),
		strings.Join(strings.Split(strings.Repeat("?", len(keys)), ""), ","))
	res, err := l.db.Exec(tblInsert, values...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
