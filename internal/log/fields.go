package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldQuery        = "query"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldUserAgent    = "user_agent"
	FieldSuccess      = "success"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldUserID       = "user_id"
	FieldOrganisation = "organisation_id"
	FieldExpenseID    = "expense_id"
	FieldExpenseType  = "expense_type"
	FieldAmountCents  = "amount_cents"
	FieldSource       = "source"
	FieldRecords      = "records"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentExpense  = "expense"
	ComponentMobile   = "mobile"
	ComponentStorage  = "storage"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentExport   = "export"
	ComponentAuth     = "auth"
	ComponentSecurity = "security"
)

// Operations defines standard operation names
const (
	OpCreate  = "create"
	OpLogin   = "login"
	OpSync    = "sync"
	OpIngest  = "ingest"
	OpExport  = "export"
	OpAppend  = "append"
	OpPublish = "publish"
	OpRender  = "render"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error message; a nil error adds nothing.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithExpense adds the fields identifying a stored expense.
func (f LogFields) WithExpense(id int64, expenseType string, amountCents int64, source string) LogFields {
	f[FieldExpenseID] = id
	f[FieldExpenseType] = expenseType
	f[FieldAmountCents] = amountCents
	f[FieldSource] = source
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
