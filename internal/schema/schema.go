package schema

// Schema represents the introspected schema of the target database.
type Schema struct {
	DatabaseType string  `yaml:"database_type"` // postgresql or oracle
	Database     string  `yaml:"database"`
	SchemaName   string  `yaml:"schema_name,omitempty"`
	Tables       []Table `yaml:"tables"`
}

// Table represents a database table.
type Table struct {
	Name        string       `yaml:"name"`
	Columns     []Column     `yaml:"columns"`
	PrimaryKey  *PrimaryKey  `yaml:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys,omitempty"`
	Indexes     []Index      `yaml:"indexes,omitempty"`
}

// Column represents a table column.
type Column struct {
	Name      string `yaml:"name"`
	DataType  string `yaml:"data_type"`
	Nullable  bool   `yaml:"nullable"`
	MaxLength *int   `yaml:"max_length,omitempty"`
}

// PrimaryKey represents a table's primary key.
type PrimaryKey struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

// ForeignKey represents a foreign key relationship.
type ForeignKey struct {
	Name              string   `yaml:"name"`
	Columns           []string `yaml:"columns"`
	ReferencedTable   string   `yaml:"referenced_table"`
	ReferencedColumns []string `yaml:"referenced_columns"`
}

// Index represents a database index.
type Index struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
}

// Column returns the named column, or nil if the table has no such column.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// IDColumn returns the single primary key column, defaulting to "id" when
// the primary key is absent or composite.
func (t *Table) IDColumn() string {
	if t.PrimaryKey != nil && len(t.PrimaryKey.Columns) == 1 {
		return t.PrimaryKey.Columns[0]
	}
	return "id"
}
