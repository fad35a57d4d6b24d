package filestore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stormdav/davcore/internal/storage"
)

// Paths
func (s *Store) schedBaseDir() string {
	return filepath.Join(s.root, "scheduling")
}
func (s *Store) schedInboxDir(userID string) string {
	return filepath.Join(s.schedBaseDir(), userID, "inbox")
}
func (s *Store) schedMsgPath(userID, uid string) string {
	return filepath.Join(s.schedInboxDir(userID), uid+".json")
}
func (s *Store) userBaseDir() string {
	return filepath.Join(s.root, "users")
}
func (s *Store) userSettingsPath(userID string) string {
	return filepath.Join(s.userBaseDir(), userID, "scheduling.json")
}

// On-disk schemas
type schedMsgFile struct {
	UID        string    `json:"uid"`
	Method     string    `json:"method"`
	Data       string    `json:"data"`        // raw ICS content
	ReceivedAt time.Time `json:"received_at"` // when stored
	Processed  bool      `json:"processed"`
}

type userSchedulingSettings struct {
	DefaultCalendarID string    `json:"default_calendar_id"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (s *Store) ProcessSchedulingMessage(ctx context.Context, recipient string, icsData []byte, method string) error {
	// extract UID from ICS; fall back if not found
	uid := extractUIDFromICS(string(icsData))
	if uid == "" {
		uid = randID()
	}
	dir := s.schedInboxDir(recipient)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	msg := schedMsgFile{
		UID:        uid,
		Method:     method,
		Data:       string(icsData),
		ReceivedAt: time.Now().UTC(),
		Processed:  false,
	}
	return writeJSON(s.schedMsgPath(recipient, uid), &msg)
}

func (s *Store) GetSchedulingInboxObjects(ctx context.Context, userID string) ([]*storage.SchedulingMessage, error) {
	dir := s.schedInboxDir(userID)
	ents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []*storage.SchedulingMessage
	for _, ent := range ents {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		var mf schedMsgFile
		if err := readJSON(filepath.Join(dir, ent.Name()), &mf); err != nil {
			continue
		}
		out = append(out, &storage.SchedulingMessage{
			ID:         mf.UID, // use UID as ID
			UserID:     userID,
			UID:        mf.UID,
			Method:     mf.Method,
			Data:       mf.Data,
			ReceivedAt: mf.ReceivedAt,
			Processed:  mf.Processed,
		})
	}
	return out, nil
}

func (s *Store) DeleteSchedulingInboxObject(ctx context.Context, userID, uid string) error {
	if uid == "" {
		return errors.New("uid required")
	}
	return os.Remove(s.schedMsgPath(userID, uid))
}

func (s *Store) GetScheduleTag(ctx context.Context, calendarID, uid string) (string, error) {
	var of objFile
	if err := readJSON(s.objPath(calendarID, uid), &of); err != nil {
		return "", err
	}
	return of.ScheduleTag, nil
}

func (s *Store) UpdateScheduleTag(ctx context.Context, calendarID, uid string) (string, error) {
	return s.updateObjectFile(calendarID, uid, func(of *objFile) error {
		of.ScheduleTag = randID()
		of.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (s *Store) updateObjectFile(calendarID, uid string, mutate func(*objFile) error) (string, error) {
	path := s.objPath(calendarID, uid)
	var of objFile
	if err := readJSON(path, &of); err != nil {
		return "", err
	}
	if err := mutate(&of); err != nil {
		return "", err
	}
	if err := writeJSON(path, &of); err != nil {
		return "", err
	}
	return of.ScheduleTag, nil
}

func (s *Store) GetDefaultCalendar(ctx context.Context, userID string) (string, error) {
	path := s.userSettingsPath(userID)
	var set userSchedulingSettings
	if err := readJSON(path, &set); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return set.DefaultCalendarID, nil
}

func (s *Store) SetDefaultCalendar(ctx context.Context, userID, calendarID string) error {
	dir := filepath.Dir(s.userSettingsPath(userID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	set := userSchedulingSettings{
		DefaultCalendarID: calendarID,
		UpdatedAt:         time.Now().UTC(),
	}
	return writeJSON(s.userSettingsPath(userID), &set)
}

func (s *Store) GetCalendarTransparency(ctx context.Context, calendarID string) (string, error) {
	var meta calMeta
	if err := readJSON(s.calMetaPath(calendarID), &meta); err != nil {
		return "", err
	}
	if meta.ScheduleTransp == "" {
		return "opaque", nil
	}
	return meta.ScheduleTransp, nil
}

func (s *Store) SetCalendarTransparency(ctx context.Context, calendarID string, transp string) error {
	return s.withCalLock(calendarID, func() error {
		metaPath := s.calMetaPath(calendarID)
		var meta calMeta
		if err := readJSON(metaPath, &meta); err != nil {
			return err
		}
		meta.ScheduleTransp = strings.ToLower(transp)
		meta.UpdatedAt = time.Now().UTC()
		return writeJSON(metaPath, &meta)
	})
}

func (s *Store) schedOutboxDir(userID string) string {
	return filepath.Join(s.schedBaseDir(), userID, "outbox")
}

func (s *Store) schedInboxMetaPath(userID string) string {
	return filepath.Join(s.schedInboxDir(userID), "box.json")
}

func (s *Store) schedOutboxMetaPath(userID string) string {
	return filepath.Join(s.schedOutboxDir(userID), "box.json")
}

func (s *Store) schedObjDir(calendarID string) string {
	return filepath.Join(s.schedBaseDir(), "objects", calendarID)
}

func (s *Store) schedObjPath(calendarID, uid, recipient string) string {
	return filepath.Join(s.schedObjDir(calendarID), uid+"_"+recipient+".json")
}

func (s *Store) attendeeRespDir(eventUID string) string {
	return filepath.Join(s.schedBaseDir(), "attendee-responses", eventUID)
}

func (s *Store) attendeeRespPath(eventUID, attendeeEmail string) string {
	return filepath.Join(s.attendeeRespDir(eventUID), attendeeEmail+".json")
}

func (s *Store) freeBusyDir(userID string) string {
	return filepath.Join(s.schedBaseDir(), "freebusy", userID)
}

func (s *Store) freeBusyPath(userID, id string) string {
	return filepath.Join(s.freeBusyDir(userID), id+".json")
}

func (s *Store) createSchedulingBox(ctx context.Context, dir, metaPath, ownerUserID, ownerGroup, uri string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(metaPath); err == nil {
		return nil
	}
	now := time.Now().UTC()
	meta := calMeta{
		ID:          randID(),
		OwnerUserID: ownerUserID,
		OwnerGroup:  ownerGroup,
		URI:         uri,
		CTag:        randID(),
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncToken:   "seq:0",
	}
	return writeJSON(metaPath, &meta)
}

func (s *Store) CreateSchedulingInbox(ctx context.Context, ownerUserID, ownerGroup string) error {
	return s.createSchedulingBox(ctx, s.schedInboxDir(ownerUserID), s.schedInboxMetaPath(ownerUserID), ownerUserID, ownerGroup, "inbox")
}

func (s *Store) CreateSchedulingOutbox(ctx context.Context, ownerUserID, ownerGroup string) error {
	return s.createSchedulingBox(ctx, s.schedOutboxDir(ownerUserID), s.schedOutboxMetaPath(ownerUserID), ownerUserID, ownerGroup, "outbox")
}

func (s *Store) getSchedulingBox(metaPath string) (*storage.Calendar, error) {
	var meta calMeta
	if err := readJSON(metaPath, &meta); err != nil {
		return nil, err
	}
	return &storage.Calendar{
		ID:          meta.ID,
		OwnerUserID: meta.OwnerUserID,
		OwnerGroup:  meta.OwnerGroup,
		URI:         meta.URI,
		DisplayName: meta.DisplayName,
		CTag:        meta.CTag,
		CreatedAt:   meta.CreatedAt,
		UpdatedAt:   meta.UpdatedAt,
	}, nil
}

func (s *Store) GetSchedulingInbox(ctx context.Context, ownerUserID string) (*storage.Calendar, error) {
	return s.getSchedulingBox(s.schedInboxMetaPath(ownerUserID))
}

func (s *Store) GetSchedulingOutbox(ctx context.Context, ownerUserID string) (*storage.Calendar, error) {
	return s.getSchedulingBox(s.schedOutboxMetaPath(ownerUserID))
}

type schedObjFile struct {
	ID         string    `json:"id"`
	CalendarID string    `json:"calendar_id"`
	UID        string    `json:"uid"`
	ETag       string    `json:"etag"`
	Data       string    `json:"data"`
	Method     string    `json:"method"`
	Recipient  string    `json:"recipient"`
	Originator string    `json:"originator"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s *Store) StoreSchedulingObject(ctx context.Context, obj *storage.SchedulingObject) error {
	if obj.CalendarID == "" || obj.UID == "" || obj.Recipient == "" {
		return errors.New("calendarID, uid and recipient required")
	}
	if err := os.MkdirAll(s.schedObjDir(obj.CalendarID), 0o755); err != nil {
		return err
	}
	now := time.Now().UTC()
	if obj.ID == "" {
		obj.ID = randID()
	}
	if obj.ETag == "" {
		obj.ETag = randID()
	}
	if obj.Status == "" {
		obj.Status = "pending"
	}
	sf := schedObjFile{
		ID:         obj.ID,
		CalendarID: obj.CalendarID,
		UID:        obj.UID,
		ETag:       obj.ETag,
		Data:       obj.Data,
		Method:     obj.Method,
		Recipient:  obj.Recipient,
		Originator: obj.Originator,
		Status:     obj.Status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return writeJSON(s.schedObjPath(obj.CalendarID, obj.UID, obj.Recipient), &sf)
}

func (s *Store) GetSchedulingObject(ctx context.Context, calendarID, uid, recipient string) (*storage.SchedulingObject, error) {
	var sf schedObjFile
	if err := readJSON(s.schedObjPath(calendarID, uid, recipient), &sf); err != nil {
		return nil, err
	}
	return &storage.SchedulingObject{
		ID:         sf.ID,
		CalendarID: sf.CalendarID,
		UID:        sf.UID,
		ETag:       sf.ETag,
		Data:       sf.Data,
		Method:     sf.Method,
		Recipient:  sf.Recipient,
		Originator: sf.Originator,
		Status:     sf.Status,
		CreatedAt:  sf.CreatedAt,
		UpdatedAt:  sf.UpdatedAt,
	}, nil
}

func (s *Store) ListSchedulingObjects(ctx context.Context, calendarID string) ([]*storage.SchedulingObject, error) {
	dir := s.schedObjDir(calendarID)
	ents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []*storage.SchedulingObject
	for _, ent := range ents {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		var sf schedObjFile
		if err := readJSON(filepath.Join(dir, ent.Name()), &sf); err != nil {
			continue
		}
		out = append(out, &storage.SchedulingObject{
			ID:         sf.ID,
			CalendarID: sf.CalendarID,
			UID:        sf.UID,
			ETag:       sf.ETag,
			Data:       sf.Data,
			Method:     sf.Method,
			Recipient:  sf.Recipient,
			Originator: sf.Originator,
			Status:     sf.Status,
			CreatedAt:  sf.CreatedAt,
			UpdatedAt:  sf.UpdatedAt,
		})
	}
	return out, nil
}

func (s *Store) DeleteSchedulingObject(ctx context.Context, calendarID, uid, recipient string) error {
	err := os.Remove(s.schedObjPath(calendarID, uid, recipient))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) UpdateSchedulingObjectStatus(ctx context.Context, calendarID, uid, recipient, status string) error {
	path := s.schedObjPath(calendarID, uid, recipient)
	var sf schedObjFile
	if err := readJSON(path, &sf); err != nil {
		return err
	}
	sf.Status = status
	sf.UpdatedAt = time.Now().UTC()
	return writeJSON(path, &sf)
}

func (s *Store) GetPendingSchedulingObjects(ctx context.Context, limit int) ([]*storage.SchedulingObject, error) {
	base := filepath.Join(s.schedBaseDir(), "objects")
	calDirs, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []*storage.SchedulingObject
	for _, cd := range calDirs {
		if !cd.IsDir() {
			continue
		}
		objs, err := s.ListSchedulingObjects(ctx, cd.Name())
		if err != nil {
			continue
		}
		for _, o := range objs {
			if o.Status != "pending" {
				continue
			}
			out = append(out, o)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (s *Store) DeleteOldSchedulingObjects(ctx context.Context, cutoff time.Time) error {
	base := filepath.Join(s.schedBaseDir(), "objects")
	calDirs, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, cd := range calDirs {
		if !cd.IsDir() {
			continue
		}
		dir := filepath.Join(base, cd.Name())
		ents, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, ent := range ents {
			path := filepath.Join(dir, ent.Name())
			var sf schedObjFile
			if err := readJSON(path, &sf); err != nil {
				continue
			}
			if sf.UpdatedAt.Before(cutoff) {
				_ = os.Remove(path)
			}
		}
	}
	return nil
}

func (s *Store) StoreAttendeeResponse(ctx context.Context, response *storage.AttendeeResponse) error {
	if response.EventUID == "" || response.AttendeeEmail == "" {
		return errors.New("eventUID and attendeeEmail required")
	}
	if err := os.MkdirAll(s.attendeeRespDir(response.EventUID), 0o755); err != nil {
		return err
	}
	now := time.Now().UTC()
	if response.ID == "" {
		response.ID = randID()
	}
	if response.CreatedAt.IsZero() {
		response.CreatedAt = now
	}
	response.UpdatedAt = now
	return writeJSON(s.attendeeRespPath(response.EventUID, response.AttendeeEmail), response)
}

func (s *Store) GetAttendeeResponse(ctx context.Context, eventUID, attendeeEmail string) (*storage.AttendeeResponse, error) {
	var r storage.AttendeeResponse
	if err := readJSON(s.attendeeRespPath(eventUID, attendeeEmail), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListAttendeeResponses(ctx context.Context, eventUID string) ([]*storage.AttendeeResponse, error) {
	dir := s.attendeeRespDir(eventUID)
	ents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []*storage.AttendeeResponse
	for _, ent := range ents {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		var r storage.AttendeeResponse
		if err := readJSON(filepath.Join(dir, ent.Name()), &r); err != nil {
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}

func (s *Store) DeleteOldAttendeeResponses(ctx context.Context, cutoff time.Time) error {
	base := filepath.Join(s.schedBaseDir(), "attendee-responses")
	dirs, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		dir := filepath.Join(base, d.Name())
		ents, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, ent := range ents {
			path := filepath.Join(dir, ent.Name())
			var r storage.AttendeeResponse
			if err := readJSON(path, &r); err != nil {
				continue
			}
			if r.UpdatedAt.Before(cutoff) {
				_ = os.Remove(path)
			}
		}
	}
	return nil
}

func (s *Store) StoreFreeBusyInfo(ctx context.Context, info *storage.FreeBusyInfo) error {
	if info.UserID == "" {
		return errors.New("userID required")
	}
	if err := os.MkdirAll(s.freeBusyDir(info.UserID), 0o755); err != nil {
		return err
	}
	if info.ID == "" {
		info.ID = randID()
	}
	now := time.Now().UTC()
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	info.UpdatedAt = now
	return writeJSON(s.freeBusyPath(info.UserID, info.ID), info)
}

func (s *Store) GetFreeBusyInfo(ctx context.Context, userID string, start, end time.Time) ([]*storage.FreeBusyInfo, error) {
	dir := s.freeBusyDir(userID)
	ents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []*storage.FreeBusyInfo
	for _, ent := range ents {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		var info storage.FreeBusyInfo
		if err := readJSON(filepath.Join(dir, ent.Name()), &info); err != nil {
			continue
		}
		if info.EndTime.Before(start) || info.StartTime.After(end) {
			continue
		}
		out = append(out, &info)
	}
	return out, nil
}

func (s *Store) DeleteFreeBusyInfo(ctx context.Context, userID, eventUID string) error {
	dir := s.freeBusyDir(userID)
	ents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, ent := range ents {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, ent.Name())
		var info storage.FreeBusyInfo
		if err := readJSON(path, &info); err != nil {
			continue
		}
		if info.EventUID == eventUID {
			_ = os.Remove(path)
		}
	}
	return nil
}

func (s *Store) DeleteOldFreeBusyInfo(ctx context.Context, cutoff time.Time) error {
	base := filepath.Join(s.schedBaseDir(), "freebusy")
	dirs, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		dir := filepath.Join(base, d.Name())
		ents, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, ent := range ents {
			path := filepath.Join(dir, ent.Name())
			var info storage.FreeBusyInfo
			if err := readJSON(path, &info); err != nil {
				continue
			}
			if info.UpdatedAt.Before(cutoff) {
				_ = os.Remove(path)
			}
		}
	}
	return nil
}

func extractUIDFromICS(ics string) string {
	lines := strings.Split(ics, "\n")
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if strings.HasPrefix(ln, "UID:") {
			return strings.TrimSpace(strings.TrimPrefix(ln, "UID:"))
		}
	}
	return ""
}
