package config

import (
	"io/fs"
	"time"
)

// -----------------------------------------------------------------------------
// Build Information
// -----------------------------------------------------------------------------

// Build variables are injected via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent identifies the HTTP client used for remote address books.
var UserAgent = "Famcal/" + Version

// -----------------------------------------------------------------------------
// Application Constants
// -----------------------------------------------------------------------------

const (
	AppName        = "Famcal"
	AppID          = "com.github.tartampluch.famcal"
	LogFileName    = "famcal.log"
	ConfigFileName = "config.yaml"
)

// -----------------------------------------------------------------------------
// Exit Codes
// -----------------------------------------------------------------------------

const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	ExitCodeUsage   = 2
)

// -----------------------------------------------------------------------------
// System & File Permissions
// -----------------------------------------------------------------------------

const (
	// FilePermUserRW represents -rw------- (Read/Write for owner only).
	// Used for logs and the settings file, which carries the JWT secret.
	FilePermUserRW fs.FileMode = 0600

	// DirPermUserRWX represents drwx------ (Read/Write/Exec for owner only).
	DirPermUserRWX fs.FileMode = 0700

	// ChannelBufferSize defines the standard buffer size for internal signaling channels.
	ChannelBufferSize = 1
)

// -----------------------------------------------------------------------------
// CLI Flags, Subcommands & Descriptions
// -----------------------------------------------------------------------------

const (
	FlagVersion      = "version"
	FlagDebug        = "debug"
	FlagConfig       = "config"
	FlagDescVersion  = "Show application version and exit"
	FlagDescDebug    = "Enable debug logging to stdout"
	FlagDescConfig   = "Path to the YAML settings file"
	MsgVersionOutput = "%s version %s (%s/%s)\n"
	MsgUsage         = "usage: famcal [flags] [serve | migrate | import-members <household-id> <file.vcf|url>]\n"

	CmdServe         = "serve"
	CmdMigrate       = "migrate"
	CmdImportMembers = "import-members"
)

// -----------------------------------------------------------------------------
// Environment Overrides
// -----------------------------------------------------------------------------

const (
	EnvDatabaseDSN = "FAMCAL_DATABASE_DSN"
	EnvJWTSecret   = "FAMCAL_JWT_SECRET"
	EnvListen      = "FAMCAL_LISTEN"
)

// -----------------------------------------------------------------------------
// Default Values & Business Logic
// -----------------------------------------------------------------------------

const (
	DefaultListen        = "127.0.0.1:18080"
	DefaultTimezone      = "UTC"
	DefaultWeekStart     = "monday"
	DefaultLanguage      = "en"
	DefaultRefreshCron   = "5 * * * *" // hourly, so every household zone rolls over within the hour
	DefaultFeedCacheSize = 256
	DefaultFeedName      = "Family Calendar"
	DefaultDatabaseDSN   = "host=localhost user=postgres dbname=famcal port=5432 sslmode=disable TimeZone=UTC"

	WeekStartMonday = "monday"
	WeekStartSunday = "sunday"

	// FeedHorizonYears is the forward window of the feed: today .. today + 1 year.
	FeedHorizonYears = 1

	DaysPerWeek = 7
)

// SupportedLanguages lists the locales shipped for feed descriptions (ISO 639-1).
var SupportedLanguages = []string{"en", "fr"}

// -----------------------------------------------------------------------------
// Domain Vocabulary
// -----------------------------------------------------------------------------

const (
	// Member reference prefixes. Every reference reaching the engines carries one.
	MemberRefRolePrefix   = "role:"
	MemberRefMemberPrefix = "member:"

	// TimeOfDayLayout is the layout of slot start/end strings.
	TimeOfDayLayout = "15:04"
	DateLayout      = "2006-01-02"
	DateLayoutBasic = "20060102"
)

// LegacyRoles are the fixed family roles used before dynamic member records existed.
var LegacyRoles = []string{"parent1", "parent2", "child1", "child2", "child3"}

// -----------------------------------------------------------------------------
// Reconciliation Scoring
// -----------------------------------------------------------------------------

const (
	WeightTitle        = 40.0
	WeightDate         = 30.0
	WeightParticipants = 30.0

	// TitleSimilarityThreshold is the raw similarity a title pair must exceed to score at all.
	TitleSimilarityThreshold = 0.70

	// FuzzyConflictThreshold is the total score a best match must exceed to become a conflict.
	FuzzyConflictThreshold = 70.0

	DateScoreSameDay  = 30.0
	DateScoreOneDay   = 20.0
	DateScoreOneWeek  = 10.0
	DateWindowOneDay  = 1
	DateWindowOneWeek = 7

	// Human-readable match reasons shown to the operator.
	ReasonSameID       = "same id as an existing event"
	ReasonTitle        = "title %.0f%% similar"
	ReasonSameDay      = "same start date"
	ReasonDaysApart    = "start dates %d day(s) apart"
	ReasonParticipants = "%d of %d participants shared"
)

// -----------------------------------------------------------------------------
// Translation Keys (I18n)
// -----------------------------------------------------------------------------

const (
	TKeyParticipants = "desc_participants"
	TKeyDropOff      = "desc_drop_off"
	TKeyPickUp       = "desc_pick_up"
	TKeyMethodCar    = "method_car"
	TKeyMethodBus    = "method_bus"
	TKeyMethodWalk   = "method_walk"
	TKeyMethodBike   = "method_bike"
)

// -----------------------------------------------------------------------------
// Standards: iCalendar & vCard
// -----------------------------------------------------------------------------

const (
	// iCal Properties
	ICalVersion      = "2.0"
	ICalProdid       = "-//Famcal//Feed//EN"
	ICalMethod       = "PUBLISH"
	ICalScale        = "GREGORIAN"
	ICalDomain       = "famcal"
	ICalStatusConfir = "CONFIRMED"

	// iCal Fields
	PropUID         = "UID"
	PropSummary     = "SUMMARY"
	PropDTStart     = "DTSTART"
	PropDTEnd       = "DTEND"
	PropDTStamp     = "DTSTAMP"
	PropRefresh     = "REFRESH-INTERVAL"
	PropDescription = "DESCRIPTION"
	PropLocation    = "LOCATION"
	PropStatus      = "STATUS"
	PropCategories  = "CATEGORIES"
	PropVersion     = "VERSION"
	PropProdid      = "PRODID"
	PropXWRCalName  = "X-WR-CALNAME"
	PropCalScale    = "CALSCALE"
	PropMethod      = "METHOD"

	// vCard Fields
	VCardFN   = "FN"
	VCardN    = "N"
	VCardUID  = "UID"
	VCardRole = "X-FAMCAL-ROLE"

	// VCardUIDURN is stripped from vCard UIDs before parsing them as member ids.
	VCardUIDURN = "urn:uuid:"

	// FormatMemberSeed names a card without a usable UID so re-imports map it
	// to the same member id: household, display name.
	FormatMemberSeed = "famcal:member:%s:%s"

	DefaultICalRefresh = 1 * time.Hour
	ICalLineOctets     = 75 // RFC 5545 content line limit, CRLF excluded

	// UID Generation: <event id>-<yyyymmdd>[-<slot>]@<domain>
	FormatUID     = "%s-%s@%s"
	FormatUIDSlot = "%s-%s-%d@%s"

	// Description lines
	FormatDescLine   = "%s: %s"
	FormatLegMethod  = "%s (%s)"
	DescListSep      = ", "
	DescLineSep      = "\n"
	FilenameFallback = "calendar"
	ExtICS           = ".ics"

	// File Extensions
	ExtVCF   = ".vcf"
	ExtVCard = ".vcard"
)

// -----------------------------------------------------------------------------
// Network & Timeouts
// -----------------------------------------------------------------------------

const (
	HTTPTimeout         = 30 * time.Second
	ShutdownTimeout     = 5 * time.Second
	ServerReadTimeout   = 10 * time.Second
	ServerWriteTimeout  = 30 * time.Second
	ServerIdleTimeout   = 60 * time.Second
	MaxHTTPResponseSize = 16 * 1024 * 1024 // 16MB of vCards is a very large household
	MaxImportBodySize   = "4M"
	MaxVCardFailures    = 32 // consecutive decode errors before giving up on a stream
	SchemeHTTP          = "http"
	SchemeHTTPS         = "https"
)

// -----------------------------------------------------------------------------
// HTTP Routes, Headers & MIME Types
// -----------------------------------------------------------------------------

const (
	RouteHealth       = "/health"
	RouteFeed         = "/feeds/:token"
	RouteAPI          = "/api"
	RouteExport       = "/households/:household/events/export"
	RoutePreview      = "/households/:household/events/import/preview"
	RouteCommit       = "/households/:household/events/import/commit"
	RouteOccurrences  = "/households/:household/occurrences"
	RouteOverride     = "/households/:household/events/:event/overrides/:date"
	ParamToken        = "token"
	ParamHousehold    = "household"
	ParamEvent        = "event"
	ParamDate         = "date"
	QueryFrom         = "from"
	QueryTo           = "to"
	QueryView         = "view"
	ViewMonth         = "month"
	AuthScheme        = "Bearer"
	ContextKeyClaims  = "claims"
	RoleOperator      = "operator"
	RoleAdmin         = "admin"
	HeaderAuthz       = "Authorization"
	HeaderContentType = "Content-Type"
	HeaderContentDisp = "Content-Disposition"
	HeaderCacheCtrl   = "Cache-Control"
	HeaderETag        = "ETag"
	HeaderLastMod     = "Last-Modified"
	HeaderXContent    = "X-Content-Type-Options"
	HeaderUserAgent   = "User-Agent"
	HeaderIfNoneMatch = "If-None-Match"
	HeaderIfModSince  = "If-Modified-Since"

	MimeTextCalendar    = "text/calendar; charset=utf-8"
	MimeNoSniff         = "nosniff"
	CacheControlPrivate = "private, no-cache"

	FormatETag        = `"%s"`
	FormatContentDisp = `attachment; filename="%s"`
)

// -----------------------------------------------------------------------------
// HTTP Error Codes (response bodies)
// -----------------------------------------------------------------------------

const (
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidMethod    = "INVALID_TOKEN_METHOD"
	CodeInvalidPayload   = "INVALID_PAYLOAD"
	CodeInvalidDate      = "INVALID_DATE"
	CodeInvalidRange     = "INVALID_RANGE"
	CodeUnresolved       = "UNRESOLVED_CONFLICT"
	CodeMissingAuth      = "MISSING_AUTH_HEADER"
	CodeInvalidAuth      = "INVALID_AUTH_HEADER"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeForbidden        = "FORBIDDEN"
	CodeInternal         = "INTERNAL_ERROR"
	ResponseKeyError     = "error"
	ResponseKeyStatus    = "status"
	ResponseStatusOK     = "ok"
	ResponseKeySkippedIn = "skippedInvalid"
	ResponseKeyConflicts = "conflicts"
	ResponseKeyValid     = "validEvents"
	ResponseKeyInvalid   = "invalid"
	ResponseKeyDetails   = "details"
)

// -----------------------------------------------------------------------------
// Error Messages (Technical/Logs)
// -----------------------------------------------------------------------------

const (
	ErrConfigPathEmpty  = "configuration error: config path is empty"
	ErrConfigNil        = "configuration error: config is nil"
	ErrConfigRead       = "failed to read settings file"
	ErrConfigParse      = "failed to parse settings file"
	ErrConfigWrite      = "failed to write settings file"
	ErrTimezone         = "configuration error: unknown timezone"
	ErrJWTSecretEmpty   = "configuration error: JWT secret is empty"
	ErrServerStartup    = "server startup failed"
	ErrServerShutdown   = "server shutdown failed"
	ErrInvalidURL       = "invalid URL structure"
	ErrProtocol         = "unsupported protocol scheme (http/https only)"
	ErrVCardParse       = "failed to parse vCard stream"
	ErrICalEncode       = "failed to encode iCalendar data"
	ErrLogFile          = "failed to open log file"
	ErrCacheDir         = "could not determine user cache dir"
	ErrCreateDir        = "could not create app cache dir"
	ErrAppFailed        = "application failed unexpectedly"
	ErrWriteResp        = "failed to write response body"
	ErrLocalesAccess    = "failed to access embedded locales"
	ErrLocaleLoad       = "failed to load locale file"
	ErrDBOpen           = "failed to open database"
	ErrDBMigrate        = "database migration failed"
	ErrDBQuery          = "database query failed"
	ErrDBWrite          = "database write failed"
	ErrCronSpec         = "invalid refresh schedule"
	ErrFeedRender       = "failed to render feed"
	ErrRecordDecode     = "stored record could not be decoded"
	ErrWindowOrder      = "window end is before window start"
	ErrRecurrence       = "failed to build weekly recurrence"
	ErrSlotDay          = "slot day of week must be between 0 and 6"
	ErrSlotTime         = "slot time must be HH:MM"
	ErrSlotOrder        = "slot start time must be before end time"
	ErrEventNoSlots     = "event has no recurrence slots"
	ErrEventDates       = "event end date is before start date"
	ErrEventTitle       = "event title is required"
	ErrEventStart       = "event start date is required"
	ErrEventCategory    = "event category is unknown"
	ErrMemberRef        = "unknown member reference"
	ErrMethod           = "unknown transportation method"
	ErrUnresolved       = "conflict has no resolution"
	ErrResolution       = "resolution must be skip, update or create"
	ErrResolutionTarget = "resolution refers to a candidate that is not a conflict"
	ErrRequestBuild     = "failed to create request"
	ErrNetwork          = "network error during fetch"
	ErrHTTPStatus       = "server returned unexpected status"
	ErrVCardOpen        = "failed to open vCard source"
	ErrMembersStore     = "failed to store members"
)

// -----------------------------------------------------------------------------
// Log Messages
// -----------------------------------------------------------------------------

const (
	MsgAppStarting     = "Starting application"
	MsgAppStop         = "Application stopped gracefully"
	MsgServerListen    = "HTTP server listening"
	MsgServerStop      = "Shutting down HTTP server..."
	MsgCacheUpdated    = "Feed cache updated"
	MsgCacheRefresh    = "Refreshing cached feeds"
	MsgCacheEvicted    = "Feed cache full, evicting all entries"
	MsgCacheStale      = "Feed rendered before a household change, not cached"
	MsgFeedRendered    = "Feed rendered"
	MsgFeedUnknown     = "Unknown feed token"
	MsgSlotSkipped     = "Skipping malformed recurrence slot"
	MsgEventSkipped    = "Skipping malformed event"
	MsgFeedSkipped     = "Skipping malformed feed"
	MsgExpandDone      = "Expansion finished"
	MsgClassifyDone    = "Import classification finished"
	MsgImportCommitted = "Import committed"
	MsgMembersImported = "Members imported"
	MsgSkippedCard     = "Skipping malformed vCard"
	MsgSkippedNoName   = "Skipping vCard without a name"
	MsgFetchStart      = "Initiating vCard download"
	MsgFetchStatus     = "Address book returned error status"
	MsgFetchBody       = "vCards downloading"
	MsgLocaleSkip      = "Skipping non-locale file"
	MsgLocaleBadName   = "Skipping malformed locale filename"
	MsgLocaleLoaded    = "Locale loaded successfully"
	MsgTransMissing    = "Missing translation key"
	MsgMigrated        = "Database schema up to date"
	MsgLogWarning      = "Warning: %s at %s: %v\n"
	MsgSettingsCreated = "Settings file created with defaults"
	MsgAuthRejected    = "Rejected API request"
	MsgRequest         = "HTTP request"
	MsgHandlerFailed   = "Request handler failed"
	MsgRefreshFailed   = "Feed refresh failed"
	MsgRefreshSchedule = "Feed refresh scheduled"
)

// -----------------------------------------------------------------------------
// Structured Logging Keys (slog)
// -----------------------------------------------------------------------------

const (
	LogKeyComponent = "component"
	LogKeyError     = "error"
	LogKeyURL       = "url"
	LogKeyStatus    = "status_code"
	LogKeyFile      = "file"
	LogKeyLang      = "lang"
	LogKeyKey       = "key"
	LogKeyListen    = "listen"
	LogKeyHousehold = "household"
	LogKeyEvent     = "event_id"
	LogKeySlot      = "slot"
	LogKeyFeed      = "feed"
	LogKeyCount     = "count"
	LogKeyIssues    = "issues"
	LogKeySizeBytes = "size_bytes"
	LogKeyETag      = "etag"
	LogKeyStats     = "stats"
	LogKeyConflicts = "conflicts"
	LogKeyClean     = "clean"
	LogKeyInvalid   = "invalid"
	LogKeyImported  = "imported"
	LogKeyUpdated   = "updated"
	LogKeySkipped   = "skipped"
	LogKeySpec      = "spec"
	LogKeyPath      = "path"
	LogKeyDuration  = "duration_ms"
	LogKeyLength    = "content_length"
	LogKeyMethod    = "method"
	LogKeyURI       = "uri"
	LogKeyRole      = "role"
	LogKeySubject   = "sub"
	LogKeyMember    = "member"

	// Startup Info Keys
	LogKeyBuild   = "build"
	LogKeyApp     = "app"
	LogKeyVersion = "version"
	LogKeyGoVer   = "go_version"
	LogKeyEnv     = "env"
	LogKeyOS      = "os"
	LogKeyArch    = "arch"
	LogKeyPID     = "pid"
)

// -----------------------------------------------------------------------------
// Log Components
// -----------------------------------------------------------------------------

const (
	CompMain      = "main"
	CompConfig    = "config"
	CompExpand    = "expand"
	CompFeed      = "feed"
	CompReconcile = "reconcile"
	CompServer    = "server"
	CompAPI       = "api"
	CompStore     = "store"
	CompMembers   = "members"
	CompFetcher   = "fetcher"
	CompWorker    = "worker"
	CompI18n      = "i18n"
)
