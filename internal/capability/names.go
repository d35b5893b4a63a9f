package capability

// Launcher capabilities.
const (
	LauncherAny               = "Launcher.Any"
	LauncherApp               = "Launcher.App"
	LauncherAppParams         = "Launcher.App.Params"
	LauncherAppClose          = "Launcher.App.Close"
	LauncherAppList           = "Launcher.App.List"
	LauncherBrowser           = "Launcher.Browser"
	LauncherBrowserParams     = "Launcher.Browser.Params"
	LauncherHulu              = "Launcher.Hulu"
	LauncherHuluParams        = "Launcher.Hulu.Params"
	LauncherNetflix           = "Launcher.Netflix"
	LauncherNetflixParams     = "Launcher.Netflix.Params"
	LauncherYouTube           = "Launcher.YouTube"
	LauncherYouTubeParams     = "Launcher.YouTube.Params"
	LauncherAmazon            = "Launcher.Amazon"
	LauncherAmazonParams      = "Launcher.Amazon.Params"
	LauncherAppStore          = "Launcher.AppStore"
	LauncherAppStoreParams    = "Launcher.AppStore.Params"
	LauncherAppState          = "Launcher.AppState"
	LauncherAppStateSubscribe = "Launcher.AppState.Subscribe"
	LauncherRunningApp        = "Launcher.RunningApp"
)

// MediaPlayer capabilities.
const (
	MediaPlayerAny                 = "MediaPlayer.Any"
	MediaPlayerDisplayImage        = "MediaPlayer.Display.Image"
	MediaPlayerPlayVideo           = "MediaPlayer.Play.Video"
	MediaPlayerPlayAudio           = "MediaPlayer.Play.Audio"
	MediaPlayerPlayPlaylist        = "MediaPlayer.Play.Playlist"
	MediaPlayerClose               = "MediaPlayer.Close"
	MediaPlayerLoop                = "MediaPlayer.Loop"
	MediaPlayerSubtitleSRT         = "MediaPlayer.Subtitle.SRT"
	MediaPlayerSubtitleWebVTT      = "MediaPlayer.Subtitle.WebVTT"
	MediaPlayerMetaDataTitle       = "MediaPlayer.MetaData.Title"
	MediaPlayerMetaDataDescription = "MediaPlayer.MetaData.Description"
	MediaPlayerMetaDataThumbnail   = "MediaPlayer.MetaData.Thumbnail"
	MediaPlayerMetaDataMimeType    = "MediaPlayer.MetaData.MimeType"
	MediaPlayerMediaInfoGet        = "MediaPlayer.MediaInfo.Get"
	MediaPlayerMediaInfoSubscribe  = "MediaPlayer.MediaInfo.Subscribe"
)

// MediaControl capabilities.
const (
	MediaControlAny                = "MediaControl.Any"
	MediaControlPlay               = "MediaControl.Play"
	MediaControlPause              = "MediaControl.Pause"
	MediaControlStop               = "MediaControl.Stop"
	MediaControlRewind             = "MediaControl.Rewind"
	MediaControlFastForward        = "MediaControl.FastForward"
	MediaControlSeek               = "MediaControl.Seek"
	MediaControlDuration           = "MediaControl.Duration"
	MediaControlPlayState          = "MediaControl.PlayState"
	MediaControlPlayStateSubscribe = "MediaControl.PlayState.Subscribe"
	MediaControlPosition           = "MediaControl.Position"
)

// VolumeControl capabilities.
const (
	VolumeControlAny           = "VolumeControl.Any"
	VolumeControlGet           = "VolumeControl.Get"
	VolumeControlSet           = "VolumeControl.Set"
	VolumeControlUpDown        = "VolumeControl.UpDown"
	VolumeControlSubscribe     = "VolumeControl.Subscribe"
	VolumeControlMuteGet       = "VolumeControl.Mute.Get"
	VolumeControlMuteSet       = "VolumeControl.Mute.Set"
	VolumeControlMuteSubscribe = "VolumeControl.Mute.Subscribe"
)

// PlaylistControl capabilities.
const (
	PlaylistControlAny         = "PlaylistControl.Any"
	PlaylistControlJumpToTrack = "PlaylistControl.JumpToTrack"
	PlaylistControlSetPlayMode = "PlaylistControl.SetPlayMode"
	PlaylistControlPrevious    = "PlaylistControl.Previous"
	PlaylistControlNext        = "PlaylistControl.Next"
)
