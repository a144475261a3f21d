package domain

// AuthorMeta describes the creator of a scraped video.
type AuthorMeta struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	NickName string `json:"nickName"`
	Verified bool   `json:"verified"`
	Fans     int64  `json:"fans"`
}

// MusicMeta describes the audio track used by a scraped video.
type MusicMeta struct {
	MusicID       string `json:"musicId"`
	MusicName     string `json:"musicName"`
	MusicAuthor   string `json:"musicAuthor"`
	MusicOriginal bool   `json:"musicOriginal"`
	PlayURL       string `json:"playUrl"`
}

// VideoMeta describes the video stream of a scraped video.
type VideoMeta struct {
	Duration int    `json:"duration"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	CoverURL string `json:"coverUrl"`
	Format   string `json:"format"`
}

// Hashtag is a single hashtag attached to a video.
type Hashtag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// VideoItem is a raw record returned by the video source connector.
// Field names follow the dataset items of the TikTok scraper actor.
type VideoItem struct {
	ID           string     `json:"id"`
	Text         string     `json:"text"`
	CreateTime   int64      `json:"createTime"`
	AuthorMeta   AuthorMeta `json:"authorMeta"`
	MusicMeta    MusicMeta  `json:"musicMeta"`
	VideoMeta    VideoMeta  `json:"videoMeta"`
	Hashtags     []Hashtag  `json:"hashtags"`
	DiggCount    int64      `json:"diggCount"`
	ShareCount   int64      `json:"shareCount"`
	PlayCount    int64      `json:"playCount"`
	CommentCount int64      `json:"commentCount"`
	CollectCount int64      `json:"collectCount"`
	WebVideoURL  string     `json:"webVideoUrl"`
}

// HashtagNames returns the hashtag names without the leading '#'.
func (v *VideoItem) HashtagNames() []string {
	names := make([]string, 0, len(v.Hashtags))
	for _, h := range v.Hashtags {
		if h.Name != "" {
			names = append(names, h.Name)
		}
	}
	return names
}

// Stats returns the engagement counters of the video.
func (v *VideoItem) Stats() TemplateStats {
	return TemplateStats{
		Views:    v.PlayCount,
		Likes:    v.DiggCount,
		Shares:   v.ShareCount,
		Comments: v.CommentCount,
		Saves:    v.CollectCount,
	}
}
