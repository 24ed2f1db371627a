// Package archive defines the domain types and collaborator interfaces shared
// by the wire client, the stores and the archival engine.
package archive

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultPosterName is used when the remote omits the name field.
const DefaultPosterName = "Anonymous"

// ThumbnailSuffix is appended to an upload id to form a thumbnail key.
const ThumbnailSuffix = "s.jpg"

// Cooldowns lists the posting cooldowns of a board, in seconds.
type Cooldowns struct {
	Threads int `json:"threads"`
	Replies int `json:"replies"`
	Images  int `json:"images"`
}

// Board is a snapshot of one entry of the remote board directory.
type Board struct {
	Board           string            `json:"board"`
	Title           string            `json:"title"`
	WorkSafe        int               `json:"ws_board"`
	PerPage         int               `json:"per_page"`
	Pages           int               `json:"pages"`
	MaxFilesize     int               `json:"max_filesize"`
	MaxWebmFilesize int               `json:"max_webm_filesize"`
	MaxCommentChars int               `json:"max_comment_chars"`
	MaxWebmDuration int               `json:"max_webm_duration"`
	BumpLimit       int               `json:"bump_limit"`
	ImageLimit      int               `json:"image_limit"`
	Cooldowns       Cooldowns         `json:"cooldowns"`
	MetaDescription string            `json:"meta_description"`
	Spoilers        *int              `json:"spoilers,omitempty"`
	CustomSpoilers  *int              `json:"custom_spoilers,omitempty"`
	IsArchived      *int              `json:"is_archived,omitempty"`
	BoardFlags      map[string]string `json:"board_flags,omitempty"`
	CountryFlags    *int              `json:"country_flags,omitempty"`
	UserIDs         *int              `json:"user_ids,omitempty"`
	Oekaki          *int              `json:"oekaki,omitempty"`
	SJISTags        *int              `json:"sjis_tags,omitempty"`
	CodeTags        *int              `json:"code_tags,omitempty"`
	MathTags        *int              `json:"math_tags,omitempty"`
	TextOnly        *int              `json:"text_only,omitempty"`
	ForcedAnon      *int              `json:"forced_anon,omitempty"`
	WebmAudio       *int              `json:"webm_audio,omitempty"`
	RequireSubject  *int              `json:"require_subject,omitempty"`
	MinImageWidth   *int              `json:"min_image_width,omitempty"`
	MinImageHeight  *int              `json:"min_image_height,omitempty"`
}

// ThreadIndexEntry is one thread as listed on an index page.
type ThreadIndexEntry struct {
	No           int64 `json:"no"`
	LastModified int64 `json:"last_modified"`
	Replies      int64 `json:"replies"`
}

// ThreadIndexPage groups the threads listed on one index page.
type ThreadIndexPage struct {
	Page    int                `json:"page"`
	Threads []ThreadIndexEntry `json:"threads"`
}

// Post is the durable unit of record. Optional remote fields are pointers;
// 0/1 flags default to zero when the remote omits them.
type Post struct {
	No            int64   `json:"no"`
	Resto         int64   `json:"resto"`
	Sticky        int64   `json:"sticky"`
	Closed        int64   `json:"closed"`
	Now           string  `json:"now"`
	Time          int64   `json:"time"`
	Name          string  `json:"name"`
	Trip          *string `json:"trip,omitempty"`
	ID            *string `json:"id,omitempty"`
	Capcode       *string `json:"capcode,omitempty"`
	Country       *string `json:"country,omitempty"`
	CountryName   *string `json:"country_name,omitempty"`
	BoardFlag     *string `json:"board_flag,omitempty"`
	FlagName      *string `json:"flag_name,omitempty"`
	Subject       *string `json:"sub,omitempty"`
	Comment       *string `json:"com,omitempty"`
	Tim           *int64  `json:"tim,omitempty"`
	Filename      *string `json:"filename,omitempty"`
	Ext           *string `json:"ext,omitempty"`
	Fsize         *int64  `json:"fsize,omitempty"`
	MD5           *string `json:"md5,omitempty"`
	W             *int64  `json:"w,omitempty"`
	H             *int64  `json:"h,omitempty"`
	TnW           *int64  `json:"tn_w,omitempty"`
	TnH           *int64  `json:"tn_h,omitempty"`
	FileDeleted   int64   `json:"filedeleted"`
	Spoiler       int64   `json:"spoiler"`
	CustomSpoiler *int64  `json:"custom_spoiler,omitempty"`
	Replies       *int64  `json:"replies,omitempty"`
	Images        *int64  `json:"images,omitempty"`
	BumpLimit     int64   `json:"bumplimit"`
	ImageLimit    int64   `json:"imagelimit"`
	Tag           *string `json:"tag,omitempty"`
	SemanticURL   *string `json:"semantic_url,omitempty"`
	Since4Pass    *int64  `json:"since4pass,omitempty"`
	UniqueIPs     *int64  `json:"unique_ips,omitempty"`
	MobileImage   int64   `json:"m_img"`
	Archived      int64   `json:"archived"`
	ArchivedOn    *int64  `json:"archived_on,omitempty"`

	// Board is assigned by the engine; the remote does not send it.
	Board string `json:"-"`
}

// UnmarshalJSON decodes a remote post, defaulting the poster name.
func (p *Post) UnmarshalJSON(data []byte) error {
	type rawPost Post
	decoded := rawPost{Name: DefaultPosterName}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("decode post: %w", err)
	}
	*p = Post(decoded)
	return nil
}

// IsOpeningPost reports whether the post opens its thread.
func (p Post) IsOpeningPost() bool {
	return p.Resto == 0
}

// ThreadNo returns the opening post number of the post's thread.
func (p Post) ThreadNo() int64 {
	if p.IsOpeningPost() {
		return p.No
	}
	return p.Resto
}

// Attachment describes an uploaded file. It is derived from a Post and never
// persisted on its own.
type Attachment struct {
	Tim           int64
	Filename      string
	Ext           string
	Fsize         int64
	MD5           string
	W             int64
	H             int64
	TnW           int64
	TnH           int64
	FileDeleted   int64
	Spoiler       int64
	CustomSpoiler *int64
}

// Attachment returns the post's attachment descriptor. The second value is
// false unless every descriptor field is present.
func (p Post) Attachment() (Attachment, bool) {
	if p.Tim == nil || p.Filename == nil || p.Ext == nil || p.Fsize == nil ||
		p.MD5 == nil || p.W == nil || p.H == nil || p.TnW == nil || p.TnH == nil {
		return Attachment{}, false
	}
	return Attachment{
		Tim:           *p.Tim,
		Filename:      *p.Filename,
		Ext:           *p.Ext,
		Fsize:         *p.Fsize,
		MD5:           *p.MD5,
		W:             *p.W,
		H:             *p.H,
		TnW:           *p.TnW,
		TnH:           *p.TnH,
		FileDeleted:   p.FileDeleted,
		Spoiler:       p.Spoiler,
		CustomSpoiler: p.CustomSpoiler,
	}, true
}

// Key is the blob key of the full attachment.
func (a Attachment) Key() string {
	return fmt.Sprintf("%d%s", a.Tim, a.Ext)
}

// ThumbnailKey is the blob key of the attachment's thumbnail.
func (a Attachment) ThumbnailKey() string {
	return fmt.Sprintf("%d%s", a.Tim, ThumbnailSuffix)
}

// ThreadStatus tags the outcome of a thread fetch.
type ThreadStatus int

// Thread fetch outcomes. NotModified and NotFound are normal control flow.
const (
	ThreadFound ThreadStatus = iota
	ThreadNotModified
	ThreadNotFound
)

// String implements fmt.Stringer.
func (s ThreadStatus) String() string {
	switch s {
	case ThreadFound:
		return "found"
	case ThreadNotModified:
		return "not_modified"
	case ThreadNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ThreadResult is the tagged result of a thread fetch. Posts is only set when
// Status is ThreadFound.
type ThreadResult struct {
	Status ThreadStatus
	Posts  []Post
}

// Found builds a ThreadFound result.
func Found(posts []Post) ThreadResult {
	return ThreadResult{Status: ThreadFound, Posts: posts}
}

// NotModified builds a ThreadNotModified result.
func NotModified() ThreadResult {
	return ThreadResult{Status: ThreadNotModified}
}

// NotFound builds a ThreadNotFound result.
func NotFound() ThreadResult {
	return ThreadResult{Status: ThreadNotFound}
}

// OpeningPost returns the first post of a found thread, or nil.
func (r ThreadResult) OpeningPost() *Post {
	if len(r.Posts) == 0 {
		return nil
	}
	return &r.Posts[0]
}

// Blob kinds used in logs and metrics.
const (
	BlobKindAttachment = "attachment"
	BlobKindThumbnail  = "thumbnail"
)

// StatusSnapshot is a point-in-time view of the engine for the ops API.
type StatusSnapshot struct {
	CycleID        string    `json:"cycle_id"`
	Cycle          int64     `json:"cycle"`
	Board          string    `json:"board"`
	Cursor         int       `json:"cursor"`
	Boards         []string  `json:"boards"`
	CycleStarted   time.Time `json:"cycle_started_at"`
	LastCycleEnded time.Time `json:"last_cycle_ended_at,omitempty"`
	InFlight       int64     `json:"in_flight"`
	PeakInFlight   int64     `json:"peak_in_flight"`
	LedgerEntries  int       `json:"ledger_entries"`
}
