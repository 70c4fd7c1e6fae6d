package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/RecoveryAshes/AutoFollow/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulk_StopsAtTargetCount(t *testing.T) {
	db := storage.NewMemoryStore()
	page := newListingPage(users("alice", "bob", "carol", "dave", "erin")...)
	deps := testDeps(page, db)

	ctrl, err := NewController(deps)
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background(), bulkConfig(3)))

	assert.Equal(t, []string{"alice", "bob", "carol"}, page.Activations())

	st := lastRun(t, db)
	assert.Equal(t, models.PhaseCompleted, st.Phase)
	assert.Equal(t, ReasonTargetReached, st.StopReason)
	assert.Equal(t, 3, st.ProcessedCount)
	assert.False(t, st.IsActive)

	entries, err := ctrl.History().List()
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.GreaterOrEqual(t, ctrl.Ignore().Len(), 3)
	for _, h := range []string{"alice", "bob", "carol"} {
		assert.True(t, ctrl.Ignore().Contains(h), h)
	}

	active, err := storage.NewTaskStore(db).Load()
	require.NoError(t, err)
	assert.Nil(t, active, "结束后不应保留进行中的任务")
}

func TestBulk_SkipsRelatedAndIgnored(t *testing.T) {
	db := storage.NewMemoryStore()
	list := users("alice", "bob", "carol", "dave")
	list[0].related = true
	page := newListingPage(list...)
	deps := testDeps(page, db)

	cfg := bulkConfig(5)
	cfg.Ignore = []string{"carol"}

	ctrl, err := NewController(deps)
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background(), cfg))

	assert.Equal(t, []string{"bob", "dave"}, page.Activations())
	st := lastRun(t, db)
	assert.Equal(t, models.PhaseCompleted, st.Phase)
	assert.Equal(t, ReasonExhausted, st.StopReason)
	assert.Equal(t, 2, st.ProcessedCount)
}

func TestBulk_PaginatesUntilTarget(t *testing.T) {
	db := storage.NewMemoryStore()
	page := newListingPage(users("a1", "a2", "a3", "a4", "a5", "a6", "a7")...)
	page.pageSize = 2
	page.visible = 2
	deps := testDeps(page, db)

	ctrl, err := NewController(deps)
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background(), bulkConfig(5)))

	assert.Equal(t, []string{"a1", "a2", "a3", "a4", "a5"}, page.Activations())
	assert.GreaterOrEqual(t, page.scrolls, 2)
	assert.Equal(t, ReasonTargetReached, lastRun(t, db).StopReason)
}

func TestBulk_ExhaustionCompletes(t *testing.T) {
	db := storage.NewMemoryStore()
	page := newListingPage(users("alice", "bob")...)
	deps := testDeps(page, db)
	notifier := deps.Notifier.(*recordingNotifier)

	ctrl, err := NewController(deps)
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background(), bulkConfig(10)))

	st := lastRun(t, db)
	assert.Equal(t, models.PhaseCompleted, st.Phase)
	assert.Equal(t, ReasonExhausted, st.StopReason)
	assert.Equal(t, 2, st.ProcessedCount)
	// 停滞判定需要至少 IdleFloor 个空闲轮
	assert.GreaterOrEqual(t, page.scrolls, testSettings().Pagination.IdleFloor-1)
	assert.Contains(t, notifier.Events(), EventPaginate)
	assert.Equal(t, EventCompleted, notifier.Events()[len(notifier.Events())-1])
}

func TestBulk_UnfollowConfirms(t *testing.T) {
	db := storage.NewMemoryStore()
	list := users("alice", "bob")
	for _, u := range list {
		u.related = true
	}
	page := newListingPage(list...)
	deps := testDeps(page, db)

	cfg := bulkConfig(2)
	cfg.Action = models.ActionUnfollow

	ctrl, err := NewController(deps)
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background(), cfg))

	assert.Equal(t, []string{"alice", "bob"}, page.Activations())
	for _, u := range list {
		assert.False(t, u.related, "%s 应已取消关注", u.handle)
	}
	assert.Equal(t, 2, lastRun(t, db).ProcessedCount)
}

func TestBulk_ConfirmTimeoutSkipsCandidate(t *testing.T) {
	db := storage.NewMemoryStore()
	list := users("alice", "bob")
	for _, u := range list {
		u.related = true
	}
	page := newListingPage(list...)
	page.noConfirm = true
	deps := testDeps(page, db)

	cfg := bulkConfig(2)
	cfg.Action = models.ActionUnfollow

	ctrl, err := NewController(deps)
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background(), cfg))

	st := lastRun(t, db)
	assert.Equal(t, 0, st.ProcessedCount)
	assert.Equal(t, 2, st.FailedCount)
	require.Len(t, st.Failures, 2)
	assert.Equal(t, "confirm_timeout", st.Failures[0].ErrorType)
	assert.Equal(t, models.PhaseActing, st.Failures[0].Phase)
	assert.False(t, ctrl.Ignore().Contains("alice"), "失败的候选不加入忽略集合")
}

func TestBulk_DisabledControlIsFailure(t *testing.T) {
	db := storage.NewMemoryStore()
	page := newListingPage(users("alice", "bob", "carol")...)
	page.disabled["u1"] = true
	deps := testDeps(page, db)

	ctrl, err := NewController(deps)
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background(), bulkConfig(2)))

	assert.Equal(t, []string{"alice", "carol"}, page.Activations())
	st := lastRun(t, db)
	assert.Equal(t, 2, st.ProcessedCount)
	require.Len(t, st.Failures, 1)
	assert.Equal(t, "bob", st.Failures[0].Handle)
	assert.Equal(t, "control_unusable", st.Failures[0].ErrorType)
}

func TestBulk_NavigatesToListingURL(t *testing.T) {
	db := storage.NewMemoryStore()
	page := newListingPage(users("alice")...)
	page.location = testBaseURL + "/"
	deps := testDeps(page, db)

	cfg := bulkConfig(1)
	cfg.ListingURL = testBaseURL + "/me/followers/"

	ctrl, err := NewController(deps)
	require.NoError(t, err)
	err = ctrl.Start(context.Background(), cfg)
	require.ErrorIs(t, err, models.ErrTeardown)
	assert.Equal(t, []string{cfg.ListingURL}, page.Navigations())

	// 新实例从持久化状态恢复,此时已在列表页面
	ctrl, err = NewController(deps)
	require.NoError(t, err)
	require.NoError(t, ctrl.Resume(context.Background()))
	assert.Equal(t, []string{"alice"}, page.Activations())
}

func TestListDriven_ResumesAcrossReloads(t *testing.T) {
	db := storage.NewMemoryStore()
	page := newProfilePage(users("a", "b", "c")...)
	deps := testDeps(page, db)
	ctx := context.Background()

	ctrl, err := NewController(deps)
	require.NoError(t, err)
	require.ErrorIs(t, ctrl.Start(ctx, listConfig("a", "b", "c")), models.ErrTeardown)
	assert.Empty(t, page.Activations())

	// 处理 a 后导航到 b,当前实例结束
	ctrl, err = NewController(deps)
	require.NoError(t, err)
	require.ErrorIs(t, ctrl.Resume(ctx), models.ErrTeardown)
	assert.Equal(t, []string{"a"}, page.Activations())

	persisted, err := storage.NewTaskStore(db).Load()
	require.NoError(t, err)
	assert.Equal(t, 1, persisted.CurrentIndex)
	assert.Equal(t, 1, persisted.ProcessedCount)
	assert.True(t, persisted.IsActive)

	ctrl, err = NewController(deps)
	require.NoError(t, err)
	require.ErrorIs(t, ctrl.Resume(ctx), models.ErrTeardown)
	assert.Equal(t, []string{"a", "b"}, page.Activations(), "恢复后从 b 开始,不重复处理 a")

	ctrl, err = NewController(deps)
	require.NoError(t, err)
	require.NoError(t, ctrl.Resume(ctx))
	assert.Equal(t, []string{"a", "b", "c"}, page.Activations())

	st := lastRun(t, db)
	assert.Equal(t, models.PhaseCompleted, st.Phase)
	assert.Equal(t, 3, st.ProcessedCount)
	assert.Equal(t, 3, st.CurrentIndex)
}

func TestListDriven_ResumeFromPersistedIndex(t *testing.T) {
	db := storage.NewMemoryStore()
	page := newProfilePage(users("a", "b", "c", "d")...)
	page.location = testBaseURL + "/c/"

	cfg := listConfig("a", "b", "c", "d")
	st := models.NewTaskState(cfg)
	st.Phase = models.PhaseAdvancingIndex
	st.CurrentIndex = 2
	st.ProcessedCount = 2
	require.NoError(t, storage.NewTaskStore(db).Save(st))

	deps := testDeps(page, db)
	host := NewHost(deps)
	require.NoError(t, host.Run(context.Background(), nil))

	assert.Equal(t, []string{"c", "d"}, page.Activations())
	assert.Equal(t, []string{testBaseURL + "/d/"}, page.Navigations())
	assert.Equal(t, []int{3, 4}, deps.Notifier.(*recordingNotifier).Processed())

	last := lastRun(t, db)
	assert.Equal(t, st.RunID, last.RunID)
	assert.Equal(t, 4, last.ProcessedCount)
}

func TestListDriven_SkipsIgnoredAndRelated(t *testing.T) {
	db := storage.NewMemoryStore()
	list := users("a", "b", "c")
	list[2].related = true
	page := newProfilePage(list...)
	deps := testDeps(page, db)

	cfg := listConfig("a", "b", "c")
	cfg.Ignore = []string{"b"}

	host := NewHost(deps)
	require.NoError(t, host.Run(context.Background(), &cfg))

	assert.Equal(t, []string{"a"}, page.Activations())
	for _, nav := range page.Navigations() {
		assert.NotEqual(t, testBaseURL+"/b/", nav, "已忽略的目标不导航")
	}

	st := lastRun(t, db)
	assert.Equal(t, models.PhaseCompleted, st.Phase)
	assert.Equal(t, ReasonListFinished, st.StopReason)
	assert.Equal(t, 1, st.ProcessedCount)
	assert.Equal(t, 2, st.SkippedCount)

	ctrl, err := NewController(deps)
	require.NoError(t, err)
	assert.True(t, ctrl.Ignore().Contains("c"), "已建立关系的目标加入忽略集合")
}

func TestListDriven_NavigationMismatchAdvances(t *testing.T) {
	db := storage.NewMemoryStore()
	page := newProfilePage(users("a", "b", "c")...)
	page.redirects = map[string]string{testBaseURL + "/b/": testBaseURL + "/accounts/login/"}
	deps := testDeps(page, db)

	cfg := listConfig("a", "b", "c")
	host := NewHost(deps)
	require.NoError(t, host.Run(context.Background(), &cfg))

	assert.Equal(t, []string{"a", "c"}, page.Activations())

	bNavs := 0
	for _, nav := range page.Navigations() {
		if nav == testBaseURL+"/b/" {
			bNavs++
		}
	}
	assert.Equal(t, testSettings().ListDriven.MaxNavRetries+1, bNavs)

	st := lastRun(t, db)
	assert.Equal(t, 2, st.ProcessedCount)
	assert.Equal(t, 1, st.FailedCount)
	require.Len(t, st.Failures, 1)
	assert.Equal(t, "b", st.Failures[0].Handle)
	assert.Equal(t, "navigation_mismatch", st.Failures[0].ErrorType)
}

func TestHost_ProcessedCountIsMonotonic(t *testing.T) {
	db := storage.NewMemoryStore()
	page := newProfilePage(users("a", "b", "c", "d")...)
	deps := testDeps(page, db)

	cfg := listConfig("a", "b", "c", "d")
	cfg.TargetCount = 3
	host := NewHost(deps)
	require.NoError(t, host.Run(context.Background(), &cfg))

	got := deps.Notifier.(*recordingNotifier).Processed()
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, []string{"a", "b", "c"}, page.Activations())
	assert.Equal(t, ReasonTargetReached, lastRun(t, db).StopReason)
}

func TestHost_StopDuringDelay(t *testing.T) {
	db := storage.NewMemoryStore()
	page := newListingPage(users("alice", "bob", "carol")...)
	deps := testDeps(page, db)

	cfg := bulkConfig(3)
	cfg.DelayMin = models.Duration(10 * time.Second)
	cfg.DelayMax = models.Duration(10 * time.Second)

	host := NewHost(deps)
	require.NoError(t, host.Launch(context.Background(), &cfg))
	require.Eventually(t, func() bool {
		return host.Status().ProcessedCount == 1
	}, 2*time.Second, 10*time.Millisecond)

	host.Stop("测试停止")
	err := host.Wait()
	require.ErrorIs(t, err, models.ErrStopped)
	assert.False(t, host.Running())

	st := lastRun(t, db)
	assert.Equal(t, models.PhaseStopped, st.Phase)
	assert.Equal(t, "测试停止", st.StopReason)
	assert.Equal(t, 1, st.ProcessedCount)
	assert.False(t, st.IsActive)

	ignore, err := storage.LoadIgnoreSet(db)
	require.NoError(t, err)
	assert.True(t, ignore.Contains("alice"), "停止后忽略集合保留")

	status := host.Status()
	assert.False(t, status.IsRunning)
	assert.Equal(t, models.PhaseStopped, status.Phase)
}

func TestHost_StopWithoutRunFinishesPersistedRun(t *testing.T) {
	db := storage.NewMemoryStore()
	st := models.NewTaskState(bulkConfig(5))
	st.Phase = models.PhaseActing
	st.ProcessedCount = 2
	require.NoError(t, storage.NewTaskStore(db).Save(st))

	host := NewHost(testDeps(newListingPage(), db))
	status := host.Stop("")

	assert.False(t, status.IsRunning)
	assert.Equal(t, models.PhaseStopped, status.Phase)
	assert.Equal(t, 2, status.ProcessedCount)

	last := lastRun(t, db)
	assert.Equal(t, "收到停止命令", last.StopReason)
}

func TestHost_LaunchValidation(t *testing.T) {
	db := storage.NewMemoryStore()
	host := NewHost(testDeps(newListingPage(), db))

	bad := bulkConfig(0)
	assert.Error(t, host.Launch(context.Background(), &bad))
	assert.ErrorIs(t, host.Launch(context.Background(), nil), models.ErrNoActiveRun)

	active := models.NewTaskState(bulkConfig(5))
	require.NoError(t, storage.NewTaskStore(db).Save(active))
	cfg := bulkConfig(5)
	assert.ErrorIs(t, host.Launch(context.Background(), &cfg), models.ErrAlreadyRunning)
}

func TestController_StartRejectsActiveRun(t *testing.T) {
	db := storage.NewMemoryStore()
	require.NoError(t, storage.NewTaskStore(db).Save(models.NewTaskState(bulkConfig(5))))

	ctrl, err := NewController(testDeps(newListingPage(), db))
	require.NoError(t, err)
	err = ctrl.Start(context.Background(), bulkConfig(1))
	assert.True(t, errors.Is(err, models.ErrAlreadyRunning))
}

func TestController_ReportOnFinish(t *testing.T) {
	db := storage.NewMemoryStore()
	page := newListingPage(users("alice", "bob")...)
	deps := testDeps(page, db)
	reporter := &recordingReporter{}
	deps.Reporter = reporter

	ctrl, err := NewController(deps)
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background(), bulkConfig(2)))

	require.Len(t, reporter.reports, 1)
	report := reporter.reports[0]
	assert.Equal(t, models.PhaseCompleted, report.FinalPhase)
	assert.Equal(t, 2, report.ProcessedCount)
	assert.Len(t, report.Entries, 2)
	assert.Equal(t, models.ActionFollow, report.Action)
}

func TestSameLocation(t *testing.T) {
	tests := []struct {
		actual, expected string
		want             bool
	}{
		{"https://social.test/alice/", "https://social.test/alice/", true},
		{"https://www.social.test/alice", "https://social.test/alice/", true},
		{"https://social.test/Alice/?hl=en", "https://social.test/alice/", true},
		{"https://social.test/accounts/login/", "https://social.test/alice/", false},
		{"https://other.test/alice/", "https://social.test/alice/", false},
		{"", "https://social.test/alice/", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sameLocation(tt.actual, tt.expected), "%s vs %s", tt.actual, tt.expected)
	}
}

func TestProfileURL(t *testing.T) {
	ctrl, err := NewController(testDeps(newListingPage(), storage.NewMemoryStore()))
	require.NoError(t, err)
	assert.Equal(t, testBaseURL+"/alice/", ctrl.profileURL("alice"))

	ctrl.deps.Settings.ListDriven.ProfileURLTemplate = "https://m.social.test/u/%s"
	assert.Equal(t, "https://m.social.test/u/alice", ctrl.profileURL("alice"))
}

type recordingReporter struct {
	reports []*models.RunReport
}

func (r *recordingReporter) GenerateReport(report *models.RunReport) (string, error) {
	r.reports = append(r.reports, report)
	return "memory", nil
}

func TestBulk_PacesBetweenActions(t *testing.T) {
	db := storage.NewMemoryStore()
	page := newListingPage(users("alice", "bob", "carol", "dave", "erin")...)
	sleeper := &recordingSleeper{}
	deps := testDeps(page, db)
	deps.Sleep = sleeper.Sleep

	cfg := bulkConfig(3)
	cfg.DelayMin = models.Duration(2 * time.Second)
	cfg.DelayMax = models.Duration(2 * time.Second)

	require.NoError(t, NewHost(deps).Run(context.Background(), &cfg))

	assert.Len(t, page.Activations(), 3)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeper.Delays(),
		"3次操作之间等待2次,最后一次之后不等待")
}

func TestBulk_PaceDelayWithinRange(t *testing.T) {
	db := storage.NewMemoryStore()
	page := newListingPage(users("alice", "bob", "carol", "dave", "erin")...)
	sleeper := &recordingSleeper{}
	deps := testDeps(page, db)
	deps.Sleep = sleeper.Sleep

	cfg := bulkConfig(5)
	cfg.DelayMin = models.Duration(time.Second)
	cfg.DelayMax = models.Duration(3 * time.Second)

	require.NoError(t, NewHost(deps).Run(context.Background(), &cfg))

	delays := sleeper.Delays()
	require.Len(t, delays, 4)
	for _, d := range delays {
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestListDriven_NoDelayAfterFinalAction(t *testing.T) {
	tests := []struct {
		name    string
		targets []string
		ignore  []string
		count   int
		want    int
	}{
		{"剩余目标都已忽略", []string{"a", "b"}, []string{"b"}, 0, 0},
		{"忽略的目标在中间", []string{"a", "b", "c"}, []string{"b"}, 0, 1},
		{"全部执行", []string{"a", "b", "c"}, nil, 0, 2},
		{"目标数大于列表长度", []string{"a", "b"}, nil, 5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := storage.NewMemoryStore()
			page := newProfilePage(users("a", "b", "c")...)
			sleeper := &recordingSleeper{}
			deps := testDeps(page, db)
			deps.Sleep = sleeper.Sleep

			cfg := listConfig(tt.targets...)
			cfg.Ignore = tt.ignore
			if tt.count > 0 {
				cfg.TargetCount = tt.count
			}
			cfg.DelayMin = models.Duration(2 * time.Second)
			cfg.DelayMax = models.Duration(2 * time.Second)

			require.NoError(t, NewHost(deps).Run(context.Background(), &cfg))
			assert.Len(t, sleeper.Delays(), tt.want)
		})
	}
}

func TestBulk_StorageWriteFailureContinuesInMemory(t *testing.T) {
	db := readOnlyStore{storage.NewMemoryStore()}
	page := newListingPage(users("alice", "bob", "carol", "dave", "erin")...)
	deps := testDeps(page, db)

	ctrl, err := NewController(deps)
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background(), bulkConfig(3)))

	assert.Equal(t, []string{"alice", "bob", "carol"}, page.Activations())
	assert.Equal(t, []int{1, 2, 3}, deps.Notifier.(*recordingNotifier).Processed())
	for _, h := range []string{"alice", "bob", "carol"} {
		assert.True(t, ctrl.Ignore().Contains(h), "写入失败时忽略集合保留在内存中: %s", h)
	}

	st, err := storage.NewTaskStore(db).LoadLast()
	require.NoError(t, err)
	assert.Nil(t, st, "存储不可写,没有持久化的运行")
}

func TestBulk_DetachedControlFailsBeforeScrolling(t *testing.T) {
	db := storage.NewMemoryStore()
	page := newListingPage(users("alice", "bob", "carol")...)
	page.detached["u1"] = true
	deps := testDeps(page, db)

	ctrl, err := NewController(deps)
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background(), bulkConfig(2)))

	assert.Equal(t, []string{"alice", "carol"}, page.Activations())
	assert.NotContains(t, page.ScrolledInto(), "u1", "脱离文档的控件不滚动")

	st := lastRun(t, db)
	require.Len(t, st.Failures, 1)
	assert.Equal(t, "bob", st.Failures[0].Handle)
	assert.Equal(t, "control_unusable", st.Failures[0].ErrorType)
}
