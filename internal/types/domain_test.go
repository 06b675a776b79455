package types

import "testing"

func boolPtr(b bool) *bool { return &b }

func TestNotificationPreferenceAllows(t *testing.T) {
	cases := []struct {
		name  string
		pref  *NotificationPreference
		event EventType
		want  bool
	}{
		{"nil record means notify", nil, EventNewComment, true},
		{"nil flag means notify", &NotificationPreference{}, EventNewComment, true},
		{"explicit true", &NotificationPreference{EmailNewComment: boolPtr(true)}, EventNewComment, true},
		{"explicit false", &NotificationPreference{EmailNewComment: boolPtr(false)}, EventNewComment, false},
		{"status change opt-out", &NotificationPreference{EmailStatusChange: boolPtr(false)}, EventStatusChange, false},
		{"vote flag gates new_vote", &NotificationPreference{EmailNewVote: boolPtr(false)}, EventNewVote, false},
		{"vote flag gates new_post", &NotificationPreference{EmailNewVote: boolPtr(false)}, EventNewPost, false},
		{"unknown event defaults to notify", &NotificationPreference{}, EventType("mystery"), true},
		{
			"comment opt-out does not affect status change",
			&NotificationPreference{EmailNewComment: boolPtr(false)},
			EventStatusChange,
			true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pref.Allows(tc.event); got != tc.want {
				t.Errorf("Allows(%s) = %v, want %v", tc.event, got, tc.want)
			}
		})
	}
}
